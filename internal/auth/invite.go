package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInviteMalformed = errors.New("invalid code format")
	ErrInviteExpired   = errors.New("invitation code has expired")
	ErrInviteSignature = errors.New("invalid invitation code")
)

// signatureLen is the number of hex characters of the HMAC kept in a code.
const signatureLen = 8

// InviteCodec mints and validates household invitation codes of the form
// base64url("<household_id>:<expiry_unix>:<hmac prefix>").
type InviteCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewInviteCodec(secret string, ttl time.Duration) *InviteCodec {
	return &InviteCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// SetClock replaces the time source used for expiry.
func (c *InviteCodec) SetClock(now func() time.Time) {
	c.now = now
}

// Generate returns a code for householdID and its expiry.
func (c *InviteCodec) Generate(householdID string) (string, time.Time) {
	expires := c.now().Add(c.ttl).UTC()
	msg := fmt.Sprintf("%s:%d", householdID, expires.Unix())
	code := base64.URLEncoding.EncodeToString([]byte(msg + ":" + c.sign(msg)))
	return code, time.Unix(expires.Unix(), 0).UTC()
}

// Validate returns the household id encoded in code.
func (c *InviteCodec) Validate(code string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(strings.TrimSpace(code))
	if err != nil {
		return "", ErrInviteMalformed
	}
	parts := strings.Split(string(raw), ":")
	if len(parts) != 3 || parts[0] == "" {
		return "", ErrInviteMalformed
	}
	householdID, expiryStr, sig := parts[0], parts[1], parts[2]

	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return "", ErrInviteMalformed
	}
	if c.now().Unix() > expiry {
		return "", ErrInviteExpired
	}

	want := c.sign(householdID + ":" + expiryStr)
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return "", ErrInviteSignature
	}
	return householdID, nil
}

func (c *InviteCodec) sign(msg string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))[:signatureLen]
}
