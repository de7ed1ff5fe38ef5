package crypts

import (
	"crypto/rand"
	"encoding/base64"
	"sync"

	"github.com/spf13/viper"
)

var (
	internalAPIKey string
	once           sync.Once
)

// GetInternalAPIKey returns the API key for the admin surface. A key from
// the config wins; otherwise a random one is generated on first use.
func GetInternalAPIKey() string {
	once.Do(func() {
		if key := viper.GetString("server.api_key"); key != "" {
			internalAPIKey = key
			return
		}
		key := make([]byte, 32)
		rand.Read(key)
		internalAPIKey = base64.StdEncoding.EncodeToString(key)
	})
	return internalAPIKey
}
