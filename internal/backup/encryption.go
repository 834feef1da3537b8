package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// EncryptedExtension is the suffix appended to encrypted artifacts
const EncryptedExtension = ".enc"

// Key source selectors for EncryptionConfig
const (
	KeySourceEnv        = "env"
	KeySourceFile       = "file"
	KeySourcePassphrase = "passphrase"
)

// EncryptionConfig controls optional artifact encryption
type EncryptionConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	KeySource string `yaml:"key_source" json:"key_source"`
	// KeyEnvVar names an environment variable holding a hex-encoded
	// 256-bit key
	KeyEnvVar string `yaml:"key_env_var" json:"key_env_var"`
	// KeyPath points to a file holding a raw 256-bit key
	KeyPath string `yaml:"key_path" json:"key_path"`
	// Passphrase is derived into a key with PBKDF2; never serialized
	Passphrase string `yaml:"-" json:"-"`
	// Salt is the hex-encoded PBKDF2 salt for the passphrase source
	Salt string `yaml:"salt" json:"salt,omitempty"`
}

// Validate checks that the configured key source is usable
func (c *EncryptionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch c.KeySource {
	case KeySourceEnv:
		if c.KeyEnvVar == "" {
			return NewValidationError("encryption key_env_var is required for the env key source", nil)
		}
	case KeySourceFile:
		if c.KeyPath == "" {
			return NewValidationError("encryption key_path is required for the file key source", nil)
		}
	case KeySourcePassphrase:
		if c.Passphrase == "" {
			return NewValidationError("encryption passphrase is required for the passphrase key source", nil)
		}
		if c.Salt == "" {
			return NewValidationError("encryption salt is required for the passphrase key source", nil)
		}
	default:
		return NewValidationError(fmt.Sprintf("unsupported encryption key source %q", c.KeySource), nil)
	}

	return nil
}

// GetEncryptionKey resolves the 256-bit key from the configured source
func (c *EncryptionConfig) GetEncryptionKey() ([]byte, error) {
	km := NewKeyManager(c)

	switch c.KeySource {
	case KeySourceEnv:
		return km.LoadKeyFromEnv(c.KeyEnvVar)
	case KeySourceFile:
		return km.LoadKeyFromFile(c.KeyPath)
	case KeySourcePassphrase:
		salt, err := hex.DecodeString(c.Salt)
		if err != nil {
			return nil, NewEncryptionError("failed to decode encryption salt", err)
		}
		return km.GenerateKeyFromPassword(c.Passphrase, salt), nil
	default:
		return nil, NewEncryptionError(fmt.Sprintf("unsupported encryption key source %q", c.KeySource), nil)
	}
}

// EncryptionStats contains statistics about encryption operations
type EncryptionStats struct {
	OriginalSize  int64         `json:"original_size"`
	EncryptedSize int64         `json:"encrypted_size"`
	Algorithm     string        `json:"algorithm"`
	KeyDerivation string        `json:"key_derivation"`
	Duration      time.Duration `json:"duration"`
}

// EncryptionManager manages encryption operations
type EncryptionManager struct {
	config *EncryptionConfig
}

// NewEncryptionManager creates a new encryption manager
func NewEncryptionManager(config *EncryptionConfig) *EncryptionManager {
	if config == nil {
		config = &EncryptionConfig{}
	}
	return &EncryptionManager{
		config: config,
	}
}

// Encrypt encrypts data using AES-256-GCM
func (em *EncryptionManager) Encrypt(data []byte) ([]byte, *EncryptionStats, error) {
	if !em.config.Enabled {
		return data, &EncryptionStats{
			OriginalSize:  int64(len(data)),
			EncryptedSize: int64(len(data)),
			Algorithm:     "NONE",
			Duration:      0,
		}, nil
	}

	start := time.Now()

	key, err := em.config.GetEncryptionKey()
	if err != nil {
		return nil, nil, NewEncryptionError("failed to get encryption key", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, NewEncryptionError("failed to create AES cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, NewEncryptionError("failed to create GCM cipher", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, NewEncryptionError("failed to generate nonce", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)

	stats := &EncryptionStats{
		OriginalSize:  int64(len(data)),
		EncryptedSize: int64(len(ciphertext)),
		Algorithm:     "AES-256-GCM",
		KeyDerivation: em.config.KeySource,
		Duration:      time.Since(start),
	}

	return ciphertext, stats, nil
}

// Decrypt decrypts data using AES-256-GCM
func (em *EncryptionManager) Decrypt(encryptedData []byte) ([]byte, error) {
	if !em.config.Enabled {
		return encryptedData, nil
	}

	key, err := em.config.GetEncryptionKey()
	if err != nil {
		return nil, NewEncryptionError("failed to get encryption key", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, NewEncryptionError("failed to create AES cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, NewEncryptionError("failed to create GCM cipher", err)
	}

	nonceSize := gcm.NonceSize()
	if len(encryptedData) < nonceSize {
		return nil, NewEncryptionError("encrypted data too short", nil)
	}

	nonce, ciphertext := encryptedData[:nonceSize], encryptedData[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, NewEncryptionError("failed to decrypt data", err)
	}

	return plaintext, nil
}

// EncryptFile encrypts an artifact in place, appending the encrypted
// suffix and removing the original on success. Returns the new path.
// Directory artifacts are rejected; callers skip them.
func (em *EncryptionManager) EncryptFile(path string) (string, *EncryptionStats, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, NewEncryptionError(fmt.Sprintf("artifact %s is not readable", path), err)
	}
	if info.IsDir() {
		return "", nil, NewEncryptionError(fmt.Sprintf("artifact %s is a directory and cannot be encrypted", path), nil)
	}

	if !em.config.Enabled {
		return path, &EncryptionStats{
			OriginalSize:  info.Size(),
			EncryptedSize: info.Size(),
			Algorithm:     "NONE",
		}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, NewEncryptionError(fmt.Sprintf("failed to read artifact %s", path), err)
	}

	encrypted, stats, err := em.Encrypt(data)
	if err != nil {
		return "", nil, err
	}

	dst := path + EncryptedExtension
	if err := os.WriteFile(dst, encrypted, 0600); err != nil {
		return "", nil, NewEncryptionError(fmt.Sprintf("failed to write encrypted artifact %s", dst), err)
	}

	if err := os.Remove(path); err != nil {
		os.Remove(dst)
		return "", nil, NewEncryptionError(fmt.Sprintf("failed to remove original artifact %s", path), err)
	}

	return dst, stats, nil
}

// DecryptFile decrypts an artifact in place, stripping the encrypted
// suffix and removing the encrypted file on success. Returns the new path.
func (em *EncryptionManager) DecryptFile(path string) (string, error) {
	if !em.config.Enabled {
		return path, nil
	}

	if !strings.HasSuffix(path, EncryptedExtension) {
		return "", NewEncryptionError(fmt.Sprintf("artifact %s does not carry the %s suffix", path, EncryptedExtension), nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", NewEncryptionError(fmt.Sprintf("failed to read encrypted artifact %s", path), err)
	}

	plaintext, err := em.Decrypt(data)
	if err != nil {
		return "", err
	}

	dst := strings.TrimSuffix(path, EncryptedExtension)
	if err := os.WriteFile(dst, plaintext, 0600); err != nil {
		return "", NewEncryptionError(fmt.Sprintf("failed to write artifact %s", dst), err)
	}

	if err := os.Remove(path); err != nil {
		return "", NewEncryptionError(fmt.Sprintf("failed to remove encrypted artifact %s", path), err)
	}

	return dst, nil
}

// IsEnabled returns whether encryption is enabled
func (em *EncryptionManager) IsEnabled() bool {
	return em.config.Enabled
}

// GetAlgorithm returns the encryption algorithm being used
func (em *EncryptionManager) GetAlgorithm() string {
	if !em.config.Enabled {
		return "NONE"
	}
	return "AES-256-GCM"
}

// KeyManager handles encryption key operations
type KeyManager struct {
	config *EncryptionConfig
}

// NewKeyManager creates a new key manager
func NewKeyManager(config *EncryptionConfig) *KeyManager {
	return &KeyManager{
		config: config,
	}
}

// GenerateKey generates a new 256-bit encryption key
func (km *KeyManager) GenerateKey() ([]byte, error) {
	key := make([]byte, 32) // 256 bits
	if _, err := rand.Read(key); err != nil {
		return nil, NewEncryptionError("failed to generate encryption key", err)
	}
	return key, nil
}

// GenerateKeyFromPassword derives a key from a password using PBKDF2
func (km *KeyManager) GenerateKeyFromPassword(password string, salt []byte) []byte {
	if len(salt) == 0 {
		salt = make([]byte, 32)
		rand.Read(salt)
	}

	// PBKDF2 with SHA-256, 100,000 iterations
	return pbkdf2.Key([]byte(password), salt, 100000, 32, sha256.New)
}

// SaveKeyToFile saves an encryption key to a file
func (km *KeyManager) SaveKeyToFile(key []byte, path string) error {
	if len(key) != 32 {
		return NewEncryptionError("key must be 32 bytes for AES-256", nil)
	}

	if err := os.WriteFile(path, key, 0600); err != nil {
		return NewEncryptionError("failed to save key to file", err)
	}

	return nil
}

// LoadKeyFromFile loads an encryption key from a file
func (km *KeyManager) LoadKeyFromFile(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEncryptionError("failed to read key from file", err)
	}

	if len(key) != 32 {
		return nil, NewEncryptionError("key file must contain 32 bytes for AES-256", nil)
	}

	return key, nil
}

// LoadKeyFromEnv loads an encryption key from an environment variable (hex-encoded)
func (km *KeyManager) LoadKeyFromEnv(envVar string) ([]byte, error) {
	hexKey := os.Getenv(envVar)
	if hexKey == "" {
		return nil, NewEncryptionError(fmt.Sprintf("environment variable %s not set", envVar), nil)
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, NewEncryptionError("failed to decode hex key from environment variable", err)
	}

	if len(key) != 32 {
		return nil, NewEncryptionError("key from environment variable must be 32 bytes for AES-256", nil)
	}

	return key, nil
}

// ValidateKey validates that a key is suitable for AES-256
func (km *KeyManager) ValidateKey(key []byte) error {
	if len(key) != 32 {
		return NewEncryptionError("key must be 32 bytes for AES-256", nil)
	}

	// Reject degenerate keys
	allZeros := true
	allOnes := true
	for _, b := range key {
		if b != 0 {
			allZeros = false
		}
		if b != 0xFF {
			allOnes = false
		}
	}

	if allZeros {
		return NewEncryptionError("key cannot be all zeros", nil)
	}
	if allOnes {
		return NewEncryptionError("key cannot be all ones", nil)
	}

	return nil
}
