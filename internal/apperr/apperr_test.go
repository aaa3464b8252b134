package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("bad %s", "input"), http.StatusBadRequest},
		{Unauthenticated("no token"), http.StatusUnauthorized},
		{Forbidden("nope"), http.StatusForbidden},
		{NotFound("task"), http.StatusNotFound},
		{Conflict("dup"), http.StatusConflict},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err).Status(); got != tt.want {
			t.Errorf("status(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("vote: %w", Conflict("already voted"))
	if !Is(err, KindConflict) {
		t.Errorf("kind = %v, want conflict", KindOf(err))
	}
	if Message(err) != "already voted" {
		t.Errorf("message = %q, want %q", Message(err), "already voted")
	}
}

func TestInternalHidesCause(t *testing.T) {
	err := Internal(errors.New("disk on fire"))
	if Message(err) != "internal error" {
		t.Errorf("message = %q, want generic", Message(err))
	}
	if Message(errors.New("raw")) != "internal error" {
		t.Error("raw errors should surface as internal error")
	}
}

func TestNotFoundMessage(t *testing.T) {
	if got := NotFound("household").Message; got != "household not found" {
		t.Errorf("message = %q, want %q", got, "household not found")
	}
}

func TestWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, NotFound("poll"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body Body
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "poll not found" || body.Kind != "not_found" {
		t.Errorf("body = %+v", body)
	}

	rec = httptest.NewRecorder()
	Write(rec, Internal(errors.New("disk on fire")))
	if strings.Contains(rec.Body.String(), "disk") {
		t.Errorf("internal cause leaked: %s", rec.Body.String())
	}
}
