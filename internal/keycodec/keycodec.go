// Package keycodec encodes possession keys into envelopes for hand-off
// between custodians and restores them on the receiving side.
//
// An envelope is an encoding, not encryption: the filler interleaved with the
// key comes from the entry hash, which is public. The trailing tag makes
// tampering and a wrong reference hash detectable.
//
// Envelope layout:
//
//	ENC_<k0><f0><k1><f1>...<k7><f7>_<tag>
//
// where k<i> is the i-th 8-character chunk of the key, f<i> is the first 4
// characters of the i-th 8-character chunk of the reference hash, and tag is
// the first 8 hex characters of SHA-256(key).
package keycodec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmerrifield20/AyuTrack/internal/hashengine"
)

const (
	prefix      = "ENC"
	separator   = "_"
	keyChunk    = 8
	hashChunk   = 8
	fillerLen   = 4
	tagLen      = 8
	decodedLen  = hashengine.HexLen
	paddingChar = "0"
)

var (
	// ErrMalformedEnvelope is returned when an envelope does not have the
	// ENC_<payload>_<tag> shape.
	ErrMalformedEnvelope = errors.New("malformed key envelope")

	// ErrVerificationFailed is returned when the decoded key does not match
	// the envelope tag, typically because the reference hash is wrong.
	ErrVerificationFailed = errors.New("key envelope verification failed")

	// ErrKeyFormat is returned by Encode for keys that are not 64 hex characters.
	ErrKeyFormat = errors.New("key must be 64 hex characters")
)

// Envelope is the transport form of a possession key.
type Envelope string

// String returns the envelope text.
func (e Envelope) String() string { return string(e) }

// Tag returns the verification tag, or "" when the envelope is malformed.
func (e Envelope) Tag() string {
	parts := strings.Split(string(e), separator)
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}

// Encode wraps key for transport, interleaving it with filler taken from
// referenceHash.
//
// When referenceHash is empty the filler is derived from the current time
// instead. Decode always needs the entry hash, so such an envelope cannot be
// decoded.
func Encode(key, referenceHash string) (Envelope, error) {
	if !hashengine.IsHex64(key) {
		return "", ErrKeyFormat
	}
	key = strings.ToUpper(key)
	if referenceHash == "" {
		referenceHash = hashengine.DigestString(strconv.FormatInt(time.Now().UnixMilli(), 10))
	}
	fillers := fillersFor(referenceHash)

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(separator)
	for i, chunk := range split(key, keyChunk) {
		b.WriteString(chunk)
		b.WriteString(fillers[i%len(fillers)])
	}
	b.WriteString(separator)
	b.WriteString(tagOf(key))
	return Envelope(b.String()), nil
}

// Decode restores the key carried by envelope. referenceHash must be the hash
// of the entry the key was minted for.
func Decode(envelope, referenceHash string) (string, error) {
	parts := strings.Split(envelope, separator)
	if len(parts) != 3 || parts[0] != prefix {
		return "", ErrMalformedEnvelope
	}
	payload, tag := parts[1], parts[2]
	if payload == "" || len(tag) != tagLen || !hashengine.IsHex(tag) {
		return "", ErrMalformedEnvelope
	}
	if referenceHash == "" {
		return "", fmt.Errorf("%w: reference hash required", ErrVerificationFailed)
	}
	fillers := fillersFor(referenceHash)

	var key strings.Builder
	for i, cursor := 0, 0; cursor < len(payload); i++ {
		end := min(cursor+keyChunk, len(payload))
		key.WriteString(payload[cursor:end])
		cursor = end

		f := fillers[i%len(fillers)]
		if cursor+len(f) <= len(payload) && strings.EqualFold(payload[cursor:cursor+len(f)], f) {
			cursor += len(f)
		}
	}

	candidate := key.String()
	if len(candidate) < decodedLen {
		candidate += strings.Repeat(paddingChar, decodedLen-len(candidate))
	}
	candidate = strings.ToUpper(candidate[:decodedLen])

	if !strings.EqualFold(tagOf(candidate), tag) {
		return "", ErrVerificationFailed
	}
	return candidate, nil
}

func tagOf(key string) string {
	return hashengine.DigestString(key)[:tagLen]
}

func fillersFor(referenceHash string) []string {
	chunks := split(referenceHash, hashChunk)
	fillers := make([]string, len(chunks))
	for i, c := range chunks {
		fillers[i] = c[:min(fillerLen, len(c))]
	}
	return fillers
}

func split(s string, size int) []string {
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
