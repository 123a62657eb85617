// Package keygate mints and checks the possession keys that authorize
// extending the ledger.
//
// Authorize is a format check only. It does not bind a key to the chain
// state: any 64-character hex key opens the gate for a 64-character hex tail.
package keygate

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmerrifield20/AyuTrack/internal/hashengine"
)

// KeyLen is the length of a possession key in hex characters.
const KeyLen = hashengine.HexLen

// maxDerivations bounds the re-derivation loop in MintKey.
const maxDerivations = 8

// ErrInvalidKey is returned when a non-first append presents a missing or
// malformed possession key.
var ErrInvalidKey = errors.New("invalid possession key")

type keyMaterial struct {
	BatchHash string `json:"batchHash"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
	Entropy   string `json:"entropy"`
}

// MintKey derives a fresh 64-hex-character possession key from an entry hash
// and timestamp. The key is returned in uppercase, the form the transport
// codec restores on decode.
func MintKey(entryHash string, timestamp int64) (string, error) {
	for i := 0; i < maxDerivations; i++ {
		nonce := make([]byte, 16)
		if _, err := rand.Read(nonce); err != nil {
			return "", fmt.Errorf("read nonce: %w", err)
		}
		raw, err := json.Marshal(keyMaterial{
			BatchHash: entryHash,
			Timestamp: timestamp,
			Nonce:     hex.EncodeToString(nonce),
			Entropy:   strconv.FormatInt(time.Now().UnixNano(), 10),
		})
		if err != nil {
			return "", fmt.Errorf("marshal key material: %w", err)
		}
		key := strings.ToUpper(hexOnly(hashengine.Digest(raw)))
		if len(key) == KeyLen {
			return key, nil
		}
	}
	return "", fmt.Errorf("mint key: no conformant key after %d derivations", maxDerivations)
}

// Authorize decides whether candidateKey may extend a chain whose tail hash
// is previousHash. The first append (empty previousHash) is always allowed.
func Authorize(candidateKey, previousHash string) bool {
	if previousHash == "" {
		return true
	}
	return hashengine.IsHex64(candidateKey) && hashengine.IsHex64(previousHash)
}

// Check is Authorize returning ErrInvalidKey on refusal.
func Check(candidateKey, previousHash string) error {
	if !Authorize(candidateKey, previousHash) {
		if candidateKey == "" {
			return fmt.Errorf("%w: a key from the previous entry is required", ErrInvalidKey)
		}
		return fmt.Errorf("%w: expected %d hex characters", ErrInvalidKey, KeyLen)
	}
	return nil
}

func hexOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if hashengine.IsHex(s[i : i+1]) {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
