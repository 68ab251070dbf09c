package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// KeyDisplayPattern is the display format: "uo_{prefix:8}_{secret:32}".
var KeyDisplayPattern = regexp.MustCompile(`^uo_[0-9a-f]{8}_[0-9a-f]{32}$`)

// GenerateApiKey mints a new credential for userID: a random 8-hex-char
// prefix (stored in the clear, for display/revocation) and a random
// 32-hex-char secret (never stored — only its SHA-256 hash is). The caller
// persists the returned model.ApiKey and shows fullKey to the user exactly
// once.
func GenerateApiKey(userID, name string) (fullKey string, key model.ApiKey, err error) {
	prefix, err := randomHex(4)
	if err != nil {
		return "", model.ApiKey{}, fmt.Errorf("generate prefix: %w", err)
	}
	secret, err := randomHex(16)
	if err != nil {
		return "", model.ApiKey{}, fmt.Errorf("generate secret: %w", err)
	}

	fullKey = fmt.Sprintf("uo_%s_%s", prefix, secret)
	key = model.ApiKey{
		Prefix:  prefix,
		KeyHash: HashApiKey(fullKey),
		UserID:  userID,
		Name:    name,
		Active:  true,
	}
	return fullKey, key, nil
}

// HashApiKey returns the hex-encoded SHA-256 digest of a full api key, the
// only form ever persisted.
func HashApiKey(fullKey string) string {
	sum := sha256.Sum256([]byte(fullKey))
	return hex.EncodeToString(sum[:])
}

func randomHex(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
