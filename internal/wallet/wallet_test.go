package wallet

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/klingon-exchange/klingon-htlc/internal/chain"
)

// Test mnemonic (DO NOT USE FOR REAL FUNDS)
const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

const testPassword = "Test123!@#"

func TestGenerateMnemonic(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error = %v", err)
	}

	words := strings.Fields(mnemonic)
	if len(words) != 24 {
		t.Errorf("expected 24 words, got %d", len(words))
	}

	if !ValidateMnemonic(mnemonic) {
		t.Error("generated mnemonic should be valid")
	}
}

func TestValidateMnemonic(t *testing.T) {
	tests := []struct {
		mnemonic string
		valid    bool
	}{
		{testMnemonic, true},
		{"invalid mnemonic words", false},
		{"", false},
		{"abandon", false}, // Too short
	}

	for _, tc := range tests {
		result := ValidateMnemonic(tc.mnemonic)
		if result != tc.valid {
			t.Errorf("ValidateMnemonic(%q) = %v, want %v", tc.mnemonic, result, tc.valid)
		}
	}
}

func TestNewFromMnemonic(t *testing.T) {
	wallet, err := NewFromMnemonic(testMnemonic, "", chain.Mainnet)
	if err != nil {
		t.Fatalf("NewFromMnemonic() error = %v", err)
	}

	if wallet.Network() != chain.Mainnet {
		t.Errorf("Network() = %s, want mainnet", wallet.Network())
	}

	if _, err := NewFromMnemonic("invalid mnemonic", "", chain.Mainnet); err == nil {
		t.Error("expected error for invalid mnemonic")
	}
	if _, err := NewFromMnemonic(testMnemonic, "", chain.Network("signet")); err == nil {
		t.Error("expected error for unknown network")
	}
}

// BIP84 test vectors for the "abandon ... about" mnemonic.
func TestDeriveAddressBIP84Vectors(t *testing.T) {
	wallet, _ := NewFromMnemonic(testMnemonic, "", chain.Mainnet)

	tests := []struct {
		change, index uint32
		want          string
	}{
		{0, 0, "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"},
		{0, 1, "bc1qnjg0jd8228aq7egyzacy8cys3knf9xvrerkf9g"},
		{1, 0, "bc1q8c6fshw2dlwun7ekn9qwf37cu2rn755upcp6el"},
	}

	for _, tc := range tests {
		addr, err := wallet.DeriveAddress("BTC", 0, tc.change, tc.index)
		if err != nil {
			t.Fatalf("DeriveAddress(%d/%d) error = %v", tc.change, tc.index, err)
		}
		if addr != tc.want {
			t.Errorf("DeriveAddress(%d/%d) = %s, want %s", tc.change, tc.index, addr, tc.want)
		}
	}

	pubKey, err := wallet.DerivePublicKey("BTC", 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	wantPub := "0330d54fd0dd420a6e5f8d3624f5f3482cae350f79d5f0753bf5beef9c2d91af3c"
	if got := hex.EncodeToString(pubKey.SerializeCompressed()); got != wantPub {
		t.Errorf("pubkey = %s, want %s", got, wantPub)
	}

	privKey, err := wallet.DerivePrivateKey("BTC", 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	wif, err := PrivateKeyToWIF(privKey, chain.MustGet("BTC", chain.Mainnet))
	if err != nil {
		t.Fatal(err)
	}
	if wif != "KyZpNDKnfs94vbrwhJneDi77V6jF64PWPF8x5cdJb8ifgg2DUc9d" {
		t.Errorf("WIF = %s", wif)
	}
}

func TestDeriveAddressPrefixes(t *testing.T) {
	tests := []struct {
		symbol  string
		network chain.Network
		prefix  string
	}{
		{"BTC", chain.Mainnet, "bc1q"},
		{"BTC", chain.Testnet, "tb1q"},
		{"BTC", chain.Regtest, "bcrt1q"},
		{"LTC", chain.Mainnet, "ltc1q"},
		{"LTC", chain.Testnet, "tltc1q"},
	}

	for _, tc := range tests {
		wallet, err := NewFromMnemonic(testMnemonic, "", tc.network)
		if err != nil {
			t.Fatalf("NewFromMnemonic(%s) error = %v", tc.network, err)
		}
		addr, err := wallet.DeriveAddress(tc.symbol, 0, 0, 0)
		if err != nil {
			t.Errorf("DeriveAddress(%s/%s) error = %v", tc.symbol, tc.network, err)
			continue
		}
		if !strings.HasPrefix(addr, tc.prefix) {
			t.Errorf("%s/%s address = %s, want prefix %s", tc.symbol, tc.network, addr, tc.prefix)
		}
	}
}

func TestDeriveUnsupported(t *testing.T) {
	wallet, _ := NewFromMnemonic(testMnemonic, "", chain.Mainnet)

	if _, err := wallet.DeriveAddress("ETH", 0, 0, 0); err == nil {
		t.Error("expected error for unsupported chain")
	}
	if _, err := wallet.DeriveKeyForChain("BTC", 1<<31, 0, 0); err == nil {
		t.Error("expected error for account index out of range")
	}
}

func TestGetDerivationPath(t *testing.T) {
	wallet, _ := NewFromMnemonic(testMnemonic, "", chain.Mainnet)

	tests := []struct {
		symbol                 string
		account, change, index uint32
		want                   string
	}{
		{"BTC", 0, 0, 0, "m/84'/0'/0'/0/0"},
		{"BTC", 1, 1, 5, "m/84'/0'/1'/1/5"},
		{"LTC", 0, 0, 2, "m/84'/2'/0'/0/2"},
	}

	for _, tc := range tests {
		path, err := wallet.GetDerivationPath(tc.symbol, tc.account, tc.change, tc.index)
		if err != nil {
			t.Errorf("GetDerivationPath(%s) error = %v", tc.symbol, err)
			continue
		}
		if path != tc.want {
			t.Errorf("GetDerivationPath(%s) = %s, want %s", tc.symbol, path, tc.want)
		}
	}
}

func TestWalletCache(t *testing.T) {
	wallet, _ := NewFromMnemonic(testMnemonic, "", chain.Mainnet)

	key1, _ := wallet.DeriveKeyForChain("BTC", 0, 0, 0)
	key2, _ := wallet.DeriveKeyForChain("BTC", 0, 0, 0)
	if key1 != key2 {
		t.Error("cached key should be returned")
	}

	wallet.ClearCache()
	key3, _ := wallet.DeriveKeyForChain("BTC", 0, 0, 0)
	if key3 == key1 {
		t.Error("ClearCache() should drop cached keys")
	}
	if key3.String() != key1.String() {
		t.Error("re-derived key should match")
	}
}

func TestPassphraseChangesKeys(t *testing.T) {
	w1, _ := NewFromMnemonic(testMnemonic, "", chain.Mainnet)
	w2, _ := NewFromMnemonic(testMnemonic, "TREZOR", chain.Mainnet)

	a1, _ := w1.DeriveAddress("BTC", 0, 0, 0)
	a2, _ := w2.DeriveAddress("BTC", 0, 0, 0)
	if a1 == a2 {
		t.Error("passphrase should change derived addresses")
	}
}

func TestWIFRoundTrip(t *testing.T) {
	wallet, _ := NewFromMnemonic(testMnemonic, "", chain.Regtest)
	params := chain.MustGet("BTC", chain.Regtest)

	privKey, _ := wallet.DerivePrivateKey("BTC", 0, 0, 3)
	wif, err := PrivateKeyToWIF(privKey, params)
	if err != nil {
		t.Fatalf("PrivateKeyToWIF() error = %v", err)
	}

	decoded, err := WIFToPrivateKey(wif, params)
	if err != nil {
		t.Fatalf("WIFToPrivateKey() error = %v", err)
	}
	if !bytes.Equal(decoded.Serialize(), privKey.Serialize()) {
		t.Error("decoded key does not match")
	}

	if _, err := WIFToPrivateKey(wif, chain.MustGet("BTC", chain.Mainnet)); err == nil {
		t.Error("expected error decoding a regtest WIF for mainnet")
	}
	if _, err := WIFToPrivateKey("not-a-wif", params); err == nil {
		t.Error("expected error for malformed WIF")
	}
}

func TestParseAddress(t *testing.T) {
	mainnet := chain.MustGet("BTC", chain.Mainnet)

	_, addrType, err := ParseAddress("bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu", mainnet)
	if err != nil {
		t.Fatalf("ParseAddress() error = %v", err)
	}
	if addrType != AddressP2WPKH {
		t.Errorf("type = %s, want p2wpkh", addrType)
	}

	_, addrType, err = ParseAddress("bc1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3qccfmv3", mainnet)
	if err != nil {
		t.Fatalf("ParseAddress(p2wsh) error = %v", err)
	}
	if addrType != AddressP2WSH {
		t.Errorf("type = %s, want p2wsh", addrType)
	}

	if ValidateAddress("tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", mainnet) {
		t.Error("testnet address should not validate on mainnet")
	}
	if ValidateAddress("garbage", mainnet) {
		t.Error("garbage should not validate")
	}
}

func TestSigner(t *testing.T) {
	wallet, _ := NewFromMnemonic(testMnemonic, "", chain.Regtest)

	signer, err := wallet.Signer("BTC", 0, 0, 0)
	if err != nil {
		t.Fatalf("Signer() error = %v", err)
	}

	pubKey, _ := wallet.DerivePublicKey("BTC", 0, 0, 0)
	if !bytes.Equal(signer.PubKey(), pubKey.SerializeCompressed()) {
		t.Error("signer public key does not match derived key")
	}

	digest := sha256.Sum256([]byte("htlc"))
	sig1, err := signer.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	sig2, _ := signer.Sign(digest[:])
	if !bytes.Equal(sig1, sig2) {
		t.Error("signatures should be deterministic")
	}
	if !signer.Verify(digest[:], sig1) {
		t.Error("Verify() rejected own signature")
	}

	parsed, err := ecdsa.ParseDERSignature(sig1)
	if err != nil {
		t.Fatalf("signature is not DER: %v", err)
	}
	s := parsed.S()
	if s.IsOverHalfOrder() {
		t.Error("signature should be low-S")
	}

	other := sha256.Sum256([]byte("other"))
	if signer.Verify(other[:], sig1) {
		t.Error("Verify() accepted signature over a different digest")
	}

	if _, err := signer.Sign([]byte("short")); err == nil {
		t.Error("expected error for non-32-byte digest")
	}

	// PubKey returns a copy.
	pk := signer.PubKey()
	pk[0] ^= 0xff
	if bytes.Equal(pk, signer.PubKey()) {
		t.Error("PubKey() should return a copy")
	}

	signer.Zero()
	if _, err := signer.Sign(digest[:]); err == nil {
		t.Error("Sign() should fail after Zero()")
	}
}

func TestSignerFromWIF(t *testing.T) {
	params := chain.MustGet("BTC", chain.Mainnet)

	signer, err := SignerFromWIF("KyZpNDKnfs94vbrwhJneDi77V6jF64PWPF8x5cdJb8ifgg2DUc9d", params)
	if err != nil {
		t.Fatalf("SignerFromWIF() error = %v", err)
	}
	want := "0330d54fd0dd420a6e5f8d3624f5f3482cae350f79d5f0753bf5beef9c2d91af3c"
	if hex.EncodeToString(signer.PubKey()) != want {
		t.Errorf("PubKey() = %x", signer.PubKey())
	}
}

func TestEncryptDecryptMnemonic(t *testing.T) {
	encrypted, err := EncryptMnemonic(testMnemonic, testPassword)
	if err != nil {
		t.Fatalf("EncryptMnemonic() error = %v", err)
	}
	if encrypted.Kind != SecretMnemonic {
		t.Errorf("Kind = %s, want mnemonic", encrypted.Kind)
	}
	if bytes.Contains(encrypted.Ciphertext, []byte("abandon")) {
		t.Error("ciphertext contains plaintext")
	}

	decrypted, err := encrypted.Decrypt(testPassword)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if decrypted != testMnemonic {
		t.Error("decrypted mnemonic does not match")
	}

	if _, err := encrypted.Decrypt("Wrong123!@#"); err == nil {
		t.Error("expected error for wrong password")
	}

	if _, err := EncryptMnemonic("not a mnemonic", testPassword); err == nil {
		t.Error("expected error for invalid mnemonic")
	}
}

func TestEncryptWIFKindIsAuthenticated(t *testing.T) {
	wif := "KyZpNDKnfs94vbrwhJneDi77V6jF64PWPF8x5cdJb8ifgg2DUc9d"

	encrypted, err := EncryptWIF(wif, testPassword)
	if err != nil {
		t.Fatalf("EncryptWIF() error = %v", err)
	}
	decrypted, err := encrypted.Decrypt(testPassword)
	if err != nil || decrypted != wif {
		t.Fatalf("Decrypt() = %q, %v", decrypted, err)
	}

	encrypted.Kind = SecretMnemonic
	if _, err := encrypted.Decrypt(testPassword); err == nil {
		t.Error("changing the kind should break decryption")
	}
}

func TestSaveLoadEncryptedSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "wallet.seed")

	encrypted, _ := EncryptMnemonic(testMnemonic, testPassword)
	if err := SaveEncryptedSecret(encrypted, path); err != nil {
		t.Fatalf("SaveEncryptedSecret() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %o, want 600", info.Mode().Perm())
	}

	loaded, err := LoadEncryptedSecret(path)
	if err != nil {
		t.Fatalf("LoadEncryptedSecret() error = %v", err)
	}
	decrypted, err := loaded.Decrypt(testPassword)
	if err != nil || decrypted != testMnemonic {
		t.Errorf("Decrypt() = %q, %v", decrypted, err)
	}

	bad := filepath.Join(t.TempDir(), "bad.seed")
	os.WriteFile(bad, []byte(`{"version":1,"kind":"xprv"}`), 0600)
	if _, err := LoadEncryptedSecret(bad); err == nil {
		t.Error("expected error for unknown keystore kind")
	}
	if _, err := LoadEncryptedSecret(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{testPassword, false},
		{"abcDEF123", false},
		{"short1!", true},
		{"alllowercase", true},
		{"12345678", true},
		{strings.Repeat("aA1!", 65), true},
	}

	for _, tc := range tests {
		err := ValidatePassword(tc.password)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tc.password, err, tc.wantErr)
		}
	}
}

func TestSecureClear(t *testing.T) {
	data := []byte("secret")
	SecureClear(data)
	for i, b := range data {
		if b != 0 {
			t.Errorf("byte %d = %d, want 0", i, b)
		}
	}
}
