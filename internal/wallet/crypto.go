package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"

	"github.com/klingon-exchange/klingon-htlc/pkg/helpers"
)

// Argon2 parameters (OWASP recommended for password hashing)
const (
	argon2Time        = 3         // Number of iterations
	argon2Memory      = 64 * 1024 // 64 MB memory
	argon2Parallelism = 4         // Parallel threads
	argon2KeyLen      = 32        // Output key length for AES-256
	argon2SaltLen     = 32        // Salt length
)

// SecretKind tells what an encrypted keystore holds.
type SecretKind string

const (
	SecretMnemonic SecretKind = "mnemonic"
	SecretWIF      SecretKind = "wif"
)

// EncryptedSecret is a mnemonic or WIF key encrypted for storage.
type EncryptedSecret struct {
	Version     int        `json:"version"`
	Kind        SecretKind `json:"kind"`
	Ciphertext  []byte     `json:"ciphertext"`
	Salt        []byte     `json:"salt"`
	Nonce       []byte     `json:"nonce"`
	Time        uint32     `json:"time"`
	Memory      uint32     `json:"memory"`
	Parallelism uint8      `json:"parallelism"`
}

// EncryptMnemonic encrypts a mnemonic using Argon2id + AES-256-GCM.
func EncryptMnemonic(mnemonic, password string) (*EncryptedSecret, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	return encryptSecret(SecretMnemonic, []byte(mnemonic), password)
}

// EncryptWIF encrypts a WIF private key using Argon2id + AES-256-GCM.
func EncryptWIF(wif, password string) (*EncryptedSecret, error) {
	if wif == "" {
		return nil, fmt.Errorf("empty WIF")
	}
	return encryptSecret(SecretWIF, []byte(wif), password)
}

func encryptSecret(kind SecretKind, plaintext []byte, password string) (*EncryptedSecret, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	salt, err := helpers.GenerateSecureRandom(argon2SaltLen)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(password, salt, argon2Time, argon2Memory, argon2Parallelism)
	if err != nil {
		return nil, err
	}

	nonce, err := helpers.GenerateSecureRandom(gcm.NonceSize())
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &EncryptedSecret{
		Version:     1,
		Kind:        kind,
		Ciphertext:  gcm.Seal(nil, nonce, plaintext, []byte(kind)),
		Salt:        salt,
		Nonce:       nonce,
		Time:        argon2Time,
		Memory:      argon2Memory,
		Parallelism: argon2Parallelism,
	}, nil
}

// Decrypt returns the plaintext secret.
func (e *EncryptedSecret) Decrypt(password string) (string, error) {
	// Use stored parameters or defaults
	time := e.Time
	if time == 0 {
		time = argon2Time
	}
	memory := e.Memory
	if memory == 0 {
		memory = argon2Memory
	}
	parallelism := e.Parallelism
	if parallelism == 0 {
		parallelism = argon2Parallelism
	}

	gcm, err := newGCM(password, e.Salt, time, memory, parallelism)
	if err != nil {
		return "", err
	}
	if len(e.Nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("invalid nonce length %d", len(e.Nonce))
	}

	plaintext, err := gcm.Open(nil, e.Nonce, e.Ciphertext, []byte(e.Kind))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt (wrong password?): %w", err)
	}
	defer helpers.SecureClear(plaintext)

	return string(plaintext), nil
}

func newGCM(password string, salt []byte, time, memory uint32, parallelism uint8) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(password), salt, time, memory, parallelism, argon2KeyLen)
	defer helpers.SecureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SaveEncryptedSecret writes an encrypted secret to a 0600 file.
func SaveEncryptedSecret(encrypted *EncryptedSecret, path string) error {
	if err := ValidateFilePath(path); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.Marshal(encrypted)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// LoadEncryptedSecret reads an encrypted secret from a file.
func LoadEncryptedSecret(path string) (*EncryptedSecret, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var encrypted EncryptedSecret
	if err := json.Unmarshal(data, &encrypted); err != nil {
		return nil, fmt.Errorf("failed to unmarshal: %w", err)
	}
	switch encrypted.Kind {
	case SecretMnemonic, SecretWIF:
	default:
		return nil, fmt.Errorf("unknown keystore kind %q", encrypted.Kind)
	}

	return &encrypted, nil
}

// SecureClear overwrites a byte slice with zeros.
func SecureClear(data []byte) {
	helpers.SecureClear(data)
}

// Password validation constants
const (
	MinPasswordLength = 8
	MaxPasswordLength = 256
)

// ValidatePassword validates password strength.
// Requires at least 8 characters and 3 of 4 character types.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	complexity := 0
	for _, ok := range []bool{hasUpper, hasLower, hasNumber, hasSpecial} {
		if ok {
			complexity++
		}
	}
	if complexity < 3 {
		return fmt.Errorf("password must contain at least 3 of: uppercase, lowercase, number, special character")
	}

	return nil
}

// ValidateFilePath validates a file path for safety.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	// Check for path traversal
	clean := filepath.Clean(path)
	if clean != path && !filepath.IsAbs(path) {
		return fmt.Errorf("suspicious path (potential traversal): %s", path)
	}

	if !utf8.ValidString(path) {
		return fmt.Errorf("path contains invalid UTF-8")
	}

	return nil
}

// ValidateAccountIndex validates a BIP44 account index.
func ValidateAccountIndex(index uint32) error {
	// Accounts use hardened derivation, max is 2^31 - 1
	const maxAccount = 1<<31 - 1
	if index > maxAccount {
		return fmt.Errorf("account index %d exceeds maximum %d", index, maxAccount)
	}
	return nil
}
