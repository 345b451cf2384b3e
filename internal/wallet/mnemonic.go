package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for the seed-encryption key derivation.
const (
	argon2Time        = 3
	argon2MemoryKiB   = 64 * 1024
	argon2Parallelism = 4
	argon2KeyLen      = 32
	argon2SaltLen     = 32
)

// EncryptedSeed is the on-disk shape of mnemonic.enc.
type EncryptedSeed struct {
	Version     int    `json:"version"`
	Ciphertext  []byte `json:"ciphertext"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Time        uint32 `json:"time"`
	Memory      uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
}

// GenerateMnemonic creates a fresh 24-word BIP-39 mnemonic (256 bits of
// entropy).
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("wallet: generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("wallet: generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// EncryptMnemonic seals a mnemonic under a passphrase-derived Argon2id key.
func EncryptMnemonic(mnemonic, passphrase string) (*EncryptedSeed, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("wallet: invalid mnemonic")
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("wallet: generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2MemoryKiB, argon2Parallelism, argon2KeyLen)
	defer secureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("wallet: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("wallet: new gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("wallet: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(mnemonic), nil)

	return &EncryptedSeed{
		Version: 1, Ciphertext: ciphertext, Salt: salt, Nonce: nonce,
		Time: argon2Time, Memory: argon2MemoryKiB, Parallelism: argon2Parallelism,
	}, nil
}

// DecryptMnemonic recovers the mnemonic, failing if passphrase is wrong.
func DecryptMnemonic(enc *EncryptedSeed, passphrase string) (string, error) {
	key := argon2.IDKey([]byte(passphrase), enc.Salt, enc.Time, enc.Memory, enc.Parallelism, argon2KeyLen)
	defer secureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("wallet: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("wallet: new gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, enc.Nonce, enc.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("wallet: decrypt mnemonic (wrong passphrase?): %w", err)
	}
	return string(plaintext), nil
}

// SaveMnemonicFile persists an encrypted seed to mnemonic.enc under dataDir.
func SaveMnemonicFile(dataDir string, enc *EncryptedSeed) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("wallet: create data dir: %w", err)
	}
	data, err := json.Marshal(enc)
	if err != nil {
		return fmt.Errorf("wallet: marshal encrypted seed: %w", err)
	}
	return os.WriteFile(filepath.Join(dataDir, "mnemonic.enc"), data, 0o600)
}

// LoadMnemonicFile reads the encrypted seed file from dataDir.
func LoadMnemonicFile(dataDir string) (*EncryptedSeed, error) {
	raw, err := os.ReadFile(filepath.Join(dataDir, "mnemonic.enc"))
	if err != nil {
		return nil, fmt.Errorf("wallet: read mnemonic file: %w", err)
	}
	var enc EncryptedSeed
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, fmt.Errorf("wallet: parse mnemonic file: %w", err)
	}
	return &enc, nil
}

func secureClear(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
