package htlc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/wire"
)

func TestClaimWitnessLayout(t *testing.T) {
	script, _ := Compile(testDetails(800000))
	sig := []byte{0x30, 0x01, 0x01}
	secret := []byte("s3cr3t")

	w := ClaimWitness(sig, secret, script)
	if len(w) != 4 {
		t.Fatalf("claim witness has %d items, want 4", len(w))
	}
	if !bytes.Equal(w[0], sig) || !bytes.Equal(w[1], secret) ||
		!bytes.Equal(w[2], []byte{0x01}) || !bytes.Equal(w[3], script.Bytes()) {
		t.Errorf("unexpected claim witness %x", w)
	}
	if !IsClaimWitness(w) || IsRefundWitness(w) {
		t.Error("claim witness misclassified")
	}

	sig[0] = 0xff
	if w[0][0] != 0x30 {
		t.Error("ClaimWitness did not copy signature")
	}
}

func TestRefundWitnessLayout(t *testing.T) {
	script, _ := Compile(testDetails(800000))
	w := RefundWitness([]byte{0x30}, script)
	if len(w) != 3 {
		t.Fatalf("refund witness has %d items, want 3", len(w))
	}
	if len(w[1]) != 0 {
		t.Errorf("refund selector = %x, want empty", w[1])
	}
	if !IsRefundWitness(w) || IsClaimWitness(w) {
		t.Error("refund witness misclassified")
	}

	b, err := SerializeWitness(w)
	if err != nil {
		t.Fatal(err)
	}
	// count, 1-byte sig, empty selector, script
	want := []byte{0x03, 0x01, 0x30, 0x00, byte(script.Len())}
	if !bytes.Equal(b[:5], want) {
		t.Errorf("serialized refund witness prefix = %x, want %x", b[:5], want)
	}
}

func TestSerializeWitnessCompactSize(t *testing.T) {
	tests := []struct {
		size   int
		prefix []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{252, []byte{0xfc}},
		{253, []byte{0xfd, 0xfd, 0x00}},
		{65535, []byte{0xfd, 0xff, 0xff}},
		{65536, []byte{0xfe, 0x00, 0x00, 0x01, 0x00}},
	}

	for _, tt := range tests {
		item := bytes.Repeat([]byte{0xaa}, tt.size)
		b, err := SerializeWitness(wire.TxWitness{item})
		if err != nil {
			t.Fatalf("size %d: %v", tt.size, err)
		}
		if b[0] != 0x01 {
			t.Errorf("size %d: count byte = %x", tt.size, b[0])
		}
		if !bytes.HasPrefix(b[1:], tt.prefix) {
			t.Errorf("size %d: length prefix = %x, want %x", tt.size, b[1:1+len(tt.prefix)], tt.prefix)
		}
		if len(b) != 1+len(tt.prefix)+tt.size {
			t.Errorf("size %d: encoded length = %d", tt.size, len(b))
		}

		w, err := ParseWitness(b)
		if err != nil {
			t.Fatalf("size %d: ParseWitness: %v", tt.size, err)
		}
		if len(w) != 1 || !bytes.Equal(w[0], item) {
			t.Errorf("size %d: parsed witness mismatch", tt.size)
		}
	}
}

func TestSerializeWitnessManyItems(t *testing.T) {
	w := make(wire.TxWitness, 253)
	for i := range w {
		w[i] = []byte{byte(i)}
	}
	b, err := SerializeWitness(w)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(b, []byte{0xfd, 0xfd, 0x00}) {
		t.Errorf("item count prefix = %x", b[:3])
	}
}

func TestParseWitnessErrors(t *testing.T) {
	tests := map[string][]byte{
		"empty":          nil,
		"count overflow": {0x05, 0x00},
		"short item":     {0x01, 0x05, 0xaa},
		"trailing bytes": {0x01, 0x01, 0xaa, 0x00},
	}
	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseWitness(b); !errors.Is(err, ErrEncoding) {
				t.Errorf("ParseWitness error = %v, want ErrEncoding", err)
			}
		})
	}
}
