package crypts

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPairAlgorithms(t *testing.T) {
	tests := []struct {
		name      string
		algorithm string
		keyLength int
	}{
		{name: "rsa 2048", algorithm: AlgRSA, keyLength: 2048},
		{name: "ecdsa p256", algorithm: AlgECDSA},
		{name: "ed25519", algorithm: AlgEd25519},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := GenerateKeyPair(tt.algorithm, tt.keyLength)
			require.NoError(t, err)
			require.NotNil(t, key)

			pemBytes, err := MarshalPrivateKeyPEM(key)
			require.NoError(t, err)

			parsed, err := ParsePrivateKeyPEM(pemBytes)
			require.NoError(t, err)
			assert.Equal(t, key.Public(), parsed.Public())

			pubPEM, err := MarshalPublicKeyPEM(key.Public())
			require.NoError(t, err)
			pub, err := ParsePublicKeyPEM(pubPEM)
			require.NoError(t, err)
			assert.Equal(t, key.Public(), pub)
		})
	}
}

func TestGenerateKeyPairUnknownAlgorithm(t *testing.T) {
	_, err := GenerateKeyPair("DSA", 0)
	assert.Error(t, err)
}

func TestFingerprintDeterministic(t *testing.T) {
	der := []byte("certificate bytes")
	assert.Equal(t, Fingerprint(der), Fingerprint(der))
	assert.NotEqual(t, Fingerprint(der), Fingerprint([]byte("other bytes")))
	assert.Len(t, Fingerprint(der), 64)
}

func TestAesRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte("k"), KeySize)
	aes := Aes{}

	sealed, err := aes.Encrypt([]byte("private key material"), key)
	require.NoError(t, err)

	opened, err := aes.Decrypt(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("private key material"), opened)

	wrongKey := bytes.Repeat([]byte("x"), KeySize)
	_, err = aes.Decrypt(sealed, wrongKey)
	assert.Error(t, err)
}
