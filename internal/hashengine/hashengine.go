// Package hashengine provides the canonical serialization and SHA-256 digest
// primitives that every other ledger component builds on.
//
// Canonical form is produced by marshalling a fixed-order struct and running
// the result through RFC 8785 JSON canonicalization, so the bytes depend only
// on the logical content of a record and never on map insertion order.
package hashengine

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/jmerrifield20/AyuTrack/internal/batch"
)

// HexLen is the length of a hex-encoded SHA-256 digest.
const HexLen = 64

// genesisPrevious is the previous-hash value hashed for the first entry.
const genesisPrevious = "0"

// ErrNonFinite is returned when a record carries NaN or infinite numbers,
// which have no canonical JSON representation.
var ErrNonFinite = errors.New("record contains a non-finite number")

// canonicalRecord fixes the field set and order of the hashed form.
type canonicalRecord struct {
	ProductType  string            `json:"productType"`
	Quantity     float64           `json:"quantity"`
	Timestamp    int64             `json:"timestamp"`
	Location     *batch.Location   `json:"location,omitempty"`
	BatchNumber  string            `json:"batchNumber"`
	PreviousHash string            `json:"previousHash"`
	Stage        batch.Stage       `json:"stage,omitempty"`
	StageData    map[string]string `json:"stageData,omitempty"`
}

// Digest returns the lowercase hex SHA-256 of b.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DigestString returns the lowercase hex SHA-256 of s.
func DigestString(s string) string {
	return Digest([]byte(s))
}

// Canonicalize returns the deterministic byte form of a record chained to
// previousHash. stage and stageData are passed separately so callers can hash
// a record under an explicit stage; an empty previousHash denotes the first entry.
func Canonicalize(r batch.Record, previousHash string, stage batch.Stage, stageData map[string]string) ([]byte, error) {
	if !finite(r.Quantity) || (r.Location != nil && (!finite(r.Location.Latitude) || !finite(r.Location.Longitude))) {
		return nil, ErrNonFinite
	}
	if previousHash == "" {
		previousHash = genesisPrevious
	}
	cr := canonicalRecord{
		ProductType:  r.ProductType,
		Quantity:     r.Quantity,
		Timestamp:    r.Timestamp,
		Location:     r.Location,
		BatchNumber:  r.BatchNumber,
		PreviousHash: strings.ToLower(previousHash),
		Stage:        stage,
		StageData:    stageData,
	}
	if len(cr.StageData) == 0 {
		cr.StageData = nil
	}
	raw, err := json.Marshal(cr)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical record: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize record: %w", err)
	}
	return out, nil
}

// EntryHash computes Digest(Canonicalize(...)) for a record.
func EntryHash(r batch.Record, previousHash string) (string, error) {
	b, err := Canonicalize(r, previousHash, r.Stage, r.StageData)
	if err != nil {
		return "", err
	}
	return Digest(b), nil
}

// Validate recomputes the digest of data and compares it with expectedHash.
// The comparison ignores hex case.
func Validate(data []byte, expectedHash string) bool {
	return strings.EqualFold(Digest(data), expectedHash)
}

// IsHex64 reports whether s is exactly 64 hexadecimal characters.
func IsHex64(s string) bool {
	return len(s) == HexLen && IsHex(s)
}

// IsHex reports whether s is non-empty and contains only hex digits.
func IsHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// EventType classifies a supply-chain transaction.
type EventType string

const (
	EventCreate   EventType = "CREATE"
	EventTransfer EventType = "TRANSFER"
	EventVerify   EventType = "VERIFY"
)

// TransactionHash digests a custody event between two parties. A random
// nonce makes every call unique, even for identical arguments.
func TransactionHash(from, to, batchID string, timestamp int64, event EventType) (string, error) {
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	payload := struct {
		From      string    `json:"from"`
		To        string    `json:"to"`
		BatchID   string    `json:"batchId"`
		Timestamp int64     `json:"timestamp"`
		EventType EventType `json:"eventType"`
		Nonce     string    `json:"nonce"`
	}{from, to, batchID, timestamp, event, hex.EncodeToString(nonce)}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal transaction: %w", err)
	}
	return Digest(raw), nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
