// Package signing produces and verifies HMAC-SHA256 signatures over smart-link
// payloads.
//
// A payload is reduced to a canonical byte string before signing: the JSON
// array
//
//	["v1", code, expiresAtUnix, inviterId, loop, params]
//
// where every string (including object keys inside params, at any depth) is
// normalized to Unicode NFC and object keys are emitted in sorted order. Two
// payloads that differ in any field therefore never share a signature, and
// visually identical strings typed with different code points do. An object
// whose distinct keys collapse to the same NFC form has no canonical encoding
// and is rejected with ErrAmbiguousKey.
//
// Signatures are rendered as "v1.<hex>". Verification never trusts a value it
// cannot fully parse: an empty, unversioned, non-hex or wrong-length signature
// is simply invalid. The comparison is constant-time.
//
// The same secret also authenticates other small tokens (the attribution
// cookie) through Sum, which mixes a purpose label into the MAC so a tag
// minted for one purpose never validates for another.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Version is the only signature scheme currently produced or accepted.
const Version = "v1"

const purposeSmartLink = "smart_link"

var (
	// ErrEmptySecret is returned by NewCodec for a zero-length key.
	ErrEmptySecret = errors.New("signing secret must not be empty")
	// ErrAmbiguousKey is returned by Canonical when two params keys are
	// equal after NFC normalization.
	ErrAmbiguousKey = errors.New("params keys collide after normalization")
)

// Payload is the signed portion of a smart link.
type Payload struct {
	Code      string
	ExpiresAt time.Time
	InviterID string
	Loop      string
	Params    map[string]any
}

// Codec signs and verifies payloads with one symmetric secret.
type Codec struct {
	secret []byte
}

// NewCodec copies secret and returns a Codec keyed with it.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	k := make([]byte, len(secret))
	copy(k, secret)
	return &Codec{secret: k}, nil
}

// Canonical returns the byte string that Sign covers.
func Canonical(p Payload) ([]byte, error) {
	params := p.Params
	if params == nil {
		params = map[string]any{}
	}
	np, err := normalize(params)
	if err != nil {
		return nil, err
	}
	tuple := []any{
		Version,
		nfc(p.Code),
		p.ExpiresAt.Unix(),
		nfc(p.InviterID),
		nfc(p.Loop),
		np,
	}
	b, err := json.Marshal(tuple)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return b, nil
}

// Sign returns the "v1.<hex>" signature of p.
func (c *Codec) Sign(p Payload) (string, error) {
	b, err := Canonical(p)
	if err != nil {
		return "", err
	}
	return Version + "." + hex.EncodeToString(c.Sum(purposeSmartLink, b)), nil
}

// Verify reports whether sig is a valid signature of p.
func (c *Codec) Verify(p Payload, sig string) bool {
	mac, ok := parse(sig)
	if !ok {
		return false
	}
	b, err := Canonical(p)
	if err != nil {
		return false
	}
	return hmac.Equal(mac, c.Sum(purposeSmartLink, b))
}

// Sum returns HMAC-SHA256(secret, purpose || 0x00 || data).
func (c *Codec) Sum(purpose string, data []byte) []byte {
	m := hmac.New(sha256.New, c.secret)
	m.Write([]byte(purpose))
	m.Write([]byte{0})
	m.Write(data)
	return m.Sum(nil)
}

// Equal compares two MACs in constant time.
func Equal(a, b []byte) bool { return hmac.Equal(a, b) }

func parse(sig string) ([]byte, bool) {
	ver, rest, found := strings.Cut(sig, ".")
	if !found || ver != Version || len(rest) != hex.EncodedLen(sha256.Size) {
		return nil, false
	}
	mac, err := hex.DecodeString(rest)
	if err != nil {
		return nil, false
	}
	return mac, true
}

func nfc(s string) string { return norm.NFC.String(s) }

// normalize walks decoded JSON values and NFC-normalizes every string.
// encoding/json already sorts map keys on output.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return nfc(t), nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			nk := nfc(k)
			if _, dup := out[nk]; dup {
				return nil, fmt.Errorf("%w: %q", ErrAmbiguousKey, nk)
			}
			nv, err := normalize(vv)
			if err != nil {
				return nil, err
			}
			out[nk] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			nv, err := normalize(vv)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}
