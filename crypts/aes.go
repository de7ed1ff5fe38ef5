package crypts

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"github.com/spf13/viper"
	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize    = 32     // AES-256
	Iterations = 100000 // PBKDF2 iterations
)

// AesSecretKey holds the key that seals private keys at rest. It is derived
// once at startup from keys.secret and keys.salt in the config.
var AesSecretKey = struct {
	Key []byte
}{}

// InitKeySecret derives the at-rest sealing key from the configuration.
func InitKeySecret() error {
	secret := viper.GetString("keys.secret")
	salt := viper.GetString("keys.salt")
	if secret == "" {
		return errors.New("keys.secret is not configured")
	}
	AesSecretKey.Key = pbkdf2.Key([]byte(secret), []byte(salt), Iterations, KeySize, sha256.New)
	return nil
}

type Aes struct{}

// Encrypt seals plaintext with AES-GCM. The nonce is prepended.
func (Aes) Encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ciphertext...), nil
}

// Decrypt opens ciphertext produced by Encrypt.
func (Aes) Decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertext = ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertext, nil)
}
