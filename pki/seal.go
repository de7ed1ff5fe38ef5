package pki

import (
	"crypto"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/dpxrk/pactwise-signflow/crypts"
)

// Private keys never touch the database in the clear: they are AES-GCM
// sealed with the PBKDF2-derived key from the config and stored base64.

func sealKey(key crypto.Signer) (string, error) {
	keyPEM, err := crypts.MarshalPrivateKeyPEM(key)
	if err != nil {
		return "", err
	}
	return sealPEM(keyPEM)
}

func sealPEM(keyPEM []byte) (string, error) {
	aes := crypts.Aes{}
	sealed, err := aes.Encrypt(keyPEM, crypts.AesSecretKey.Key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func unsealKey(sealed string) (crypto.Signer, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, err
	}
	aes := crypts.Aes{}
	keyPEM, err := aes.Decrypt(raw, crypts.AesSecretKey.Key)
	if err != nil {
		return nil, err
	}
	return crypts.ParsePrivateKeyPEM(keyPEM)
}

func decodePEMBlock(data, blockType string) ([]byte, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if block.Type != blockType {
		return nil, fmt.Errorf("unexpected PEM block type %q, want %q", block.Type, blockType)
	}
	return block.Bytes, nil
}
