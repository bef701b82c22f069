package attribution

import (
	"encoding/base64"
	"net/url"
	"strings"
	"testing"

	"github.com/tbourn/growth-loop-backend/internal/signing"
)

func newCodec(t *testing.T, secret string) *Codec {
	t.Helper()
	s, err := signing.NewCodec([]byte(secret))
	if err != nil {
		t.Fatalf("signing.NewCodec: %v", err)
	}
	return NewCodec(s)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	c := newCodec(t, "0123456789abcdef")
	q, _ := url.ParseQuery("utm_source=tw&utm_campaign=spring&other=x")
	in := Record{InviterID: "u1", Loop: "results_share", SmartLinkCode: "abc"}.WithUTM(q)

	v, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.HasPrefix(v, "v1.") || strings.Count(v, ".") != 2 {
		t.Fatalf("unexpected cookie format: %q", v)
	}
	out, err := c.Decode(v)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
	if out.UTMSource != "tw" || out.UTMCampaign != "spring" || out.UTMMedium != "" {
		t.Fatalf("utm fields unexpected: %+v", out)
	}
}

func TestDecode_Rejects(t *testing.T) {
	c := newCodec(t, "0123456789abcdef")
	good, _ := c.Encode(Record{InviterID: "u1", Loop: "deck_share", SmartLinkCode: "abc"})
	parts := strings.Split(good, ".")

	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"inviter_id":"evil","loop":"deck_share","smart_link_code":"abc"}`))
	other := newCodec(t, "fedcba9876543210")
	foreign, _ := other.Encode(Record{InviterID: "u1", Loop: "deck_share", SmartLinkCode: "abc"})
	missing, _ := c.Encode(Record{InviterID: "u1", Loop: "deck_share"})

	cases := map[string]string{
		"empty":          "",
		"unsigned json":  `{"inviter_id":"u1","loop":"deck_share","smart_link_code":"abc"}`,
		"two parts":      parts[0] + "." + parts[1],
		"other version":  "v2." + parts[1] + "." + parts[2],
		"tampered body":  parts[0] + "." + forged + "." + parts[2],
		"bad mac base64": parts[0] + "." + parts[1] + ".!!!",
		"foreign secret": foreign,
		"missing code":   missing,
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := c.Decode(v); err != ErrInvalidCookie {
				t.Fatalf("expected ErrInvalidCookie, got %v", err)
			}
		})
	}
}

func TestFields_OmitsEmptyUTM(t *testing.T) {
	f := Record{InviterID: "u1", Loop: "l", SmartLinkCode: "c", UTMMedium: "email"}.Fields()
	if f["utm_medium"] != "email" {
		t.Fatalf("utm_medium missing: %#v", f)
	}
	if _, ok := f["utm_source"]; ok {
		t.Fatalf("empty utm_source must be omitted: %#v", f)
	}
	if f["smart_link_code"] != "c" {
		t.Fatalf("core fields missing: %#v", f)
	}
}
