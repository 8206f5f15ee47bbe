package helpers

import (
	"bytes"
	"testing"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   uint64
		decimals uint8
		want     string
	}{
		{0, 8, "0"},
		{1, 8, "0.00000001"},
		{546, 8, "0.00000546"},
		{100000000, 8, "1"},
		{150000000, 8, "1.5"},
		{2100000000000000, 8, "21000000"},
		{42, 0, "42"},
	}

	for _, tc := range tests {
		if got := FormatAmount(tc.amount, tc.decimals); got != tc.want {
			t.Errorf("FormatAmount(%d, %d) = %s, want %s", tc.amount, tc.decimals, got, tc.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    uint64
		wantErr bool
	}{
		{"1", 100000000, false},
		{"1.5", 150000000, false},
		{"0.00000001", 1, false},
		{".5", 50000000, false},
		{"0.000000001", 0, true},
		{"", 0, true},
		{"1a", 0, true},
		{"-1", 0, true},
		{"999999999999", 0, true},
	}

	for _, tc := range tests {
		got, err := ParseAmount(tc.input, 8)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseAmount(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestFormatParseRoundtrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 1000, 99999999, 100000000, 123456789} {
		got, err := ParseAmount(SatoshisToBTC(v), 8)
		if err != nil {
			t.Fatalf("ParseAmount(%s) error = %v", SatoshisToBTC(v), err)
		}
		if got != v {
			t.Errorf("roundtrip %d -> %d", v, got)
		}
	}
}

func TestDecodeHex(t *testing.T) {
	b, err := DecodeHex(" 0xdeadbeef\n")
	if err != nil {
		t.Fatalf("DecodeHex() error = %v", err)
	}
	if !bytes.Equal(b, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Errorf("DecodeHex() = %x", b)
	}

	if _, err := DecodeHexLen("abcd", 3); err == nil {
		t.Error("DecodeHexLen should reject wrong length")
	}
	if _, err := DecodeHex("zz"); err == nil {
		t.Error("DecodeHex should reject non-hex input")
	}
}

func TestCloneAndClear(t *testing.T) {
	orig := []byte{1, 2, 3}
	c := CloneBytes(orig)
	c[0] = 9
	if orig[0] != 1 {
		t.Error("CloneBytes should not alias its input")
	}
	if CloneBytes(nil) != nil {
		t.Error("CloneBytes(nil) should be nil")
	}

	SecureClear(orig)
	if !bytes.Equal(orig, []byte{0, 0, 0}) {
		t.Errorf("SecureClear left %x", orig)
	}
}

func TestConstantTimeCompare(t *testing.T) {
	if !ConstantTimeCompare([]byte("abc"), []byte("abc")) {
		t.Error("equal slices should compare equal")
	}
	if ConstantTimeCompare([]byte("abc"), []byte("abd")) {
		t.Error("different slices should not compare equal")
	}
}
