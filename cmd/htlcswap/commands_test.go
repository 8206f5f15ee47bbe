package main

import (
	"flag"
	"testing"

	"github.com/klingon-exchange/klingon-htlc/internal/storage"
)

func TestParseOutpoint(t *testing.T) {
	txid, vout, err := parseOutpoint("abcd:3")
	if err != nil {
		t.Fatalf("parseOutpoint() error = %v", err)
	}
	if txid != "abcd" || vout != 3 {
		t.Errorf("parseOutpoint() = %s:%d", txid, vout)
	}

	for _, bad := range []string{"", "abcd", "abcd:", "abcd:-1", "abcd:4294967296"} {
		if _, _, err := parseOutpoint(bad); err == nil {
			t.Errorf("parseOutpoint(%q) should fail", bad)
		}
	}
}

func TestFundingFlagsResolve(t *testing.T) {
	contract := &storage.Contract{FundingTxID: "ff", FundingVout: 1, Amount: 50000}

	tests := []struct {
		name       string
		args       []string
		contract   *storage.Contract
		wantTxID   string
		wantVout   uint32
		wantAmount uint64
		wantErr    bool
	}{
		{"from contract", nil, contract, "ff", 1, 50000, false},
		{"amount override", []string{"-amount", "40000"}, contract, "ff", 1, 40000, false},
		{"same outpoint keeps amount", []string{"-funding", "ff:1"}, contract, "ff", 1, 50000, false},
		{"other outpoint needs amount", []string{"-funding", "ee:0"}, contract, "", 0, 0, true},
		{"explicit", []string{"-funding", "ee:0", "-amount", "7000"}, nil, "ee", 0, 7000, false},
		{"nothing", nil, nil, "", 0, 0, true},
	}

	for _, tt := range tests {
		fs := flag.NewFlagSet(tt.name, flag.ContinueOnError)
		f := registerFundingFlags(fs)
		if err := fs.Parse(tt.args); err != nil {
			t.Fatal(err)
		}

		txid, vout, amount, err := f.resolve(tt.contract)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if txid != tt.wantTxID || vout != tt.wantVout || amount != tt.wantAmount {
			t.Errorf("%s: got %s:%d %d", tt.name, txid, vout, amount)
		}
	}
}
