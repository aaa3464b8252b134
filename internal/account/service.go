// Package account handles registration, login, token refresh and profiles.
package account

import (
	"context"
	"log/slog"
	"maps"
	"net/mail"
	"strings"
	"time"

	"github.com/dukerupert/hearth/internal/apperr"
	"github.com/dukerupert/hearth/internal/auth"
	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/store"
)

const (
	minPasswordLen = 8
	maxNameLen     = 50
)

type Service struct {
	stores   *store.Stores
	tokens   *auth.TokenManager
	denylist auth.Denylist
	logger   *slog.Logger
}

func NewService(stores *store.Stores, tokens *auth.TokenManager, denylist auth.Denylist, logger *slog.Logger) *Service {
	return &Service{
		stores:   stores,
		tokens:   tokens,
		denylist: denylist,
		logger:   logger,
	}
}

type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Session is returned by register and login.
type Session struct {
	User *model.User `json:"user"`
	*auth.TokenPair
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@"):], ".") {
		return "", apperr.Validation("invalid email address")
	}
	return strings.ToLower(addr.Address), nil
}

func validateName(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", apperr.Validation("%s is required", field)
	}
	if len(v) > maxNameLen {
		return "", apperr.Validation("%s must be at most %d characters", field, maxNameLen)
	}
	return v, nil
}

func validatePassword(pw string) error {
	if len(pw) < minPasswordLen {
		return apperr.Validation("password must be at least %d characters", minPasswordLen)
	}
	return nil
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	first, err := validateName("first_name", in.FirstName)
	if err != nil {
		return nil, err
	}
	last, err := validateName("last_name", in.LastName)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	existing, err := s.stores.Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if existing != nil {
		return nil, apperr.Conflict("email already registered")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	u, err := s.stores.Users.Create(ctx, model.User{
		Email:        email,
		FirstName:    first,
		LastName:     last,
		PasswordHash: hash,
		Role:         model.RoleMember,
		Preferences:  map[string]any{},
	})
	if err != nil {
		// lost a race with a concurrent registration
		if again, _ := s.stores.Users.GetByEmail(ctx, email); again != nil {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, apperr.Internal(err)
	}

	s.logger.Info("user registered", "user_id", u.ID)
	return s.session(u)
}

func (s *Service) session(u *model.User) (*Session, error) {
	pair, err := s.tokens.IssuePair(u.ID, string(u.Role))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Session{User: u, TokenPair: pair}, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.stores.Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if u == nil {
		return nil, apperr.Unauthenticated("invalid email or password")
	}
	ok, err := auth.CheckPassword(u.PasswordHash, password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, apperr.Unauthenticated("invalid email or password")
	}
	return s.session(u)
}

// Authenticate verifies an access token, including revocation, and returns
// its claims.
func (s *Service) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	return s.verify(ctx, token, auth.TokenAccess)
}

func (s *Service) verify(ctx context.Context, token, tokenType string) (*auth.Claims, error) {
	claims, err := s.tokens.Parse(token, tokenType)
	if err != nil {
		return nil, apperr.Unauthenticated("invalid or expired token")
	}
	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if revoked {
		return nil, apperr.Unauthenticated("token has been revoked")
	}
	return claims, nil
}

// Refresh trades a valid refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.verify(ctx, refreshToken, auth.TokenRefresh)
	if err != nil {
		return nil, err
	}
	u, err := s.stores.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if u == nil {
		return nil, apperr.Unauthenticated("user no longer exists")
	}
	pair, err := s.tokens.IssuePair(u.ID, string(u.Role))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	pair.RefreshToken = refreshToken
	return pair, nil
}

// Logout revokes the refresh token until it would have expired.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.verify(ctx, refreshToken, auth.TokenRefresh)
	if err != nil {
		return err
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.denylist.Revoke(ctx, claims.ID, ttl); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.stores.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if u == nil {
		return nil, apperr.NotFound("user")
	}
	return u, nil
}

type ProfileUpdate struct {
	FirstName   *string        `json:"first_name"`
	LastName    *string        `json:"last_name"`
	Preferences map[string]any `json:"preferences"`
	Password    *string        `json:"password"`
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*model.User, error) {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.FirstName != nil {
		if u.FirstName, err = validateName("first_name", *in.FirstName); err != nil {
			return nil, err
		}
	}
	if in.LastName != nil {
		if u.LastName, err = validateName("last_name", *in.LastName); err != nil {
			return nil, err
		}
	}
	if in.Password != nil {
		if err := validatePassword(*in.Password); err != nil {
			return nil, err
		}
		if u.PasswordHash, err = auth.HashPassword(*in.Password); err != nil {
			return nil, apperr.Internal(err)
		}
	}
	u.Preferences = mergePreferences(u.Preferences, in.Preferences)

	updated, err := s.stores.Users.Update(ctx, u)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return updated, nil
}

// UpdatePreferences shallow-merges patch into the stored preferences.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, patch map[string]any) (map[string]any, error) {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	merged := mergePreferences(u.Preferences, patch)
	if err := s.stores.Users.SetPreferences(ctx, userID, merged); err != nil {
		return nil, apperr.Internal(err)
	}
	return merged, nil
}

func mergePreferences(base, patch map[string]any) map[string]any {
	out := maps.Clone(base)
	if out == nil {
		out = map[string]any{}
	}
	maps.Copy(out, patch)
	return out
}
