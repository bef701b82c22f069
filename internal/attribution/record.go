// Package attribution defines the AttributionRecord carried from a smart-link
// click through sign-in, and the signed, versioned cookie encoding it travels
// in.
//
// The cookie value is
//
//	v1.<base64url(json)>.<base64url(mac)>
//
// where mac is an HMAC over "v1." + the encoded JSON, keyed by the smart-link
// secret under a dedicated purpose label. Decode is a pure function: it
// accepts only values it can fully authenticate and parse, so nothing derived
// from an unsigned or tampered cookie ever reaches reward logic.
package attribution

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/tbourn/growth-loop-backend/internal/signing"
)

// Cookie names and lifetimes.
const (
	CookieName       = "vt_attrib"
	MarkerCookieName = "vt_attrib_seen"

	MaxAge       = 30 * 24 * time.Hour
	MarkerMaxAge = time.Hour
)

const (
	version = "v1"
	purpose = "attribution_cookie"
)

// ErrInvalidCookie covers every reason a cookie value is rejected.
var ErrInvalidCookie = errors.New("invalid attribution cookie")

// Record is the transient attribution payload.
type Record struct {
	InviterID     string `json:"inviter_id"`
	Loop          string `json:"loop"`
	SmartLinkCode string `json:"smart_link_code"`
	UTMSource     string `json:"utm_source,omitempty"`
	UTMMedium     string `json:"utm_medium,omitempty"`
	UTMCampaign   string `json:"utm_campaign,omitempty"`
	UTMTerm       string `json:"utm_term,omitempty"`
	UTMContent    string `json:"utm_content,omitempty"`
}

// WithUTM copies the utm_* parameters present in q onto r.
func (r Record) WithUTM(q url.Values) Record {
	r.UTMSource = q.Get("utm_source")
	r.UTMMedium = q.Get("utm_medium")
	r.UTMCampaign = q.Get("utm_campaign")
	r.UTMTerm = q.Get("utm_term")
	r.UTMContent = q.Get("utm_content")
	return r
}

// Fields flattens r for analytics properties, omitting empty values.
func (r Record) Fields() map[string]any {
	out := map[string]any{
		"inviter_id":      r.InviterID,
		"loop":            r.Loop,
		"smart_link_code": r.SmartLinkCode,
	}
	for k, v := range map[string]string{
		"utm_source": r.UTMSource, "utm_medium": r.UTMMedium, "utm_campaign": r.UTMCampaign,
		"utm_term": r.UTMTerm, "utm_content": r.UTMContent,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Codec encodes and authenticates cookie values.
type Codec struct {
	signer *signing.Codec
}

// NewCodec returns a Codec that authenticates with signer's secret.
func NewCodec(signer *signing.Codec) *Codec { return &Codec{signer: signer} }

// Encode serializes and signs r.
func (c *Codec) Encode(r Record) (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	body := version + "." + base64.RawURLEncoding.EncodeToString(raw)
	mac := c.signer.Sum(purpose, []byte(body))
	return body + "." + base64.RawURLEncoding.EncodeToString(mac), nil
}

// Decode authenticates and parses a cookie value.
func (c *Codec) Decode(v string) (Record, error) {
	parts := strings.Split(v, ".")
	if len(parts) != 3 || parts[0] != version {
		return Record{}, ErrInvalidCookie
	}
	mac, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Record{}, ErrInvalidCookie
	}
	body := parts[0] + "." + parts[1]
	if !signing.Equal(mac, c.signer.Sum(purpose, []byte(body))) {
		return Record{}, ErrInvalidCookie
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Record{}, ErrInvalidCookie
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, ErrInvalidCookie
	}
	if r.InviterID == "" || r.Loop == "" || r.SmartLinkCode == "" {
		return Record{}, ErrInvalidCookie
	}
	return r, nil
}
