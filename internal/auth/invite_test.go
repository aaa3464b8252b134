package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestCodec(at time.Time) *InviteCodec {
	c := NewInviteCodec("test-secret", 7*24*time.Hour)
	c.now = func() time.Time { return at }
	return c
}

func TestInviteRoundTrip(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCodec(now)

	code, expires := c.Generate("household-1")
	if !expires.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Errorf("expires = %v, want +7d", expires)
	}

	hid, err := c.Validate(code)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if hid != "household-1" {
		t.Errorf("household = %q, want household-1", hid)
	}
}

func TestInviteExpired(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCodec(now)
	code, _ := c.Generate("household-1")

	c.now = func() time.Time { return now.Add(8 * 24 * time.Hour) }
	if _, err := c.Validate(code); !errors.Is(err, ErrInviteExpired) {
		t.Errorf("err = %v, want ErrInviteExpired", err)
	}
}

func TestInviteTamperedSignature(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCodec(now)
	code, _ := c.Generate("household-1")

	raw, _ := base64.URLEncoding.DecodeString(code)
	parts := strings.Split(string(raw), ":")
	forged := base64.URLEncoding.EncodeToString([]byte("household-2:" + parts[1] + ":" + parts[2]))

	if _, err := c.Validate(forged); !errors.Is(err, ErrInviteSignature) {
		t.Errorf("err = %v, want ErrInviteSignature", err)
	}

	other := NewInviteCodec("other-secret", time.Hour)
	other.now = c.now
	if _, err := other.Validate(code); !errors.Is(err, ErrInviteSignature) {
		t.Errorf("other secret err = %v, want ErrInviteSignature", err)
	}
}

func TestInviteMalformed(t *testing.T) {
	c := newTestCodec(time.Now())
	tests := []string{
		"!!!not base64",
		base64.URLEncoding.EncodeToString([]byte("only:two")),
		base64.URLEncoding.EncodeToString([]byte("a:b:c:d")),
		base64.URLEncoding.EncodeToString([]byte("hid:notanumber:abcdef12")),
	}
	for _, code := range tests {
		if _, err := c.Validate(code); !errors.Is(err, ErrInviteMalformed) {
			t.Errorf("Validate(%q) err = %v, want ErrInviteMalformed", code, err)
		}
	}
}
