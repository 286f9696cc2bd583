// Package authz guards the governance surface. Every endpoint is
// platform-operator-only: callers present an operator email plus a bearer
// secret that is checked against a bcrypt hash in the control schema.
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pagemd/governance/internal/platform/httpx"
)

// Admin is one platform operator account.
type Admin struct {
	ID        uuid.UUID
	Email     string
	TokenHash string
	IsActive  bool
}

var (
	// ErrUnknownAdmin covers both missing accounts and bad secrets so
	// responses never reveal which half failed.
	ErrUnknownAdmin = errors.New("authz: unknown admin or bad credentials")
	// ErrInactiveAdmin indicates a disabled operator account.
	ErrInactiveAdmin = errors.New("authz: admin account is inactive")
)

// Store fetches operator accounts.
type Store interface {
	FetchByEmail(ctx context.Context, email string) (Admin, bool, error)
}

// Verifier checks operator credentials.
type Verifier struct {
	store Store
}

// NewVerifier builds a Verifier.
func NewVerifier(store Store) *Verifier {
	return &Verifier{store: store}
}

// Verify resolves the admin for email and compares secret against its
// bcrypt hash.
func (v *Verifier) Verify(ctx context.Context, email, secret string) (Admin, error) {
	admin, found, err := v.store.FetchByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return Admin{}, fmt.Errorf("authz: fetch admin: %w", err)
	}
	if !found {
		// Burn a comparison anyway to keep timing uniform.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$invalidinvalidinvalidinvalidinvalid"), []byte(secret))
		return Admin{}, ErrUnknownAdmin
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.TokenHash), []byte(secret)); err != nil {
		return Admin{}, ErrUnknownAdmin
	}
	if !admin.IsActive {
		return Admin{}, ErrInactiveAdmin
	}
	return admin, nil
}

type contextKey struct{}

// AdminFromContext returns the authenticated operator, if any.
func AdminFromContext(ctx context.Context) (Admin, bool) {
	admin, ok := ctx.Value(contextKey{}).(Admin)
	return admin, ok
}

// Middleware enforces operator authentication on a router subtree.
type Middleware struct {
	logger   *slog.Logger
	verifier *Verifier
}

// NewMiddleware builds Middleware.
func NewMiddleware(logger *slog.Logger, verifier *Verifier) *Middleware {
	return &Middleware{logger: logger, verifier: verifier}
}

// RequirePlatformAdmin rejects requests without valid operator
// credentials. Credentials travel as the X-Admin-Email header plus a
// bearer token.
func (m *Middleware) RequirePlatformAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := r.Header.Get("X-Admin-Email")
		secret, ok := bearerToken(r)
		if email == "" || !ok {
			httpx.RespondError(w, fmt.Errorf("%w: operator credentials required", httpx.ErrUnauthorized))
			return
		}
		admin, err := m.verifier.Verify(r.Context(), email, secret)
		switch {
		case errors.Is(err, ErrUnknownAdmin):
			httpx.RespondError(w, fmt.Errorf("%w: invalid operator credentials", httpx.ErrUnauthorized))
			return
		case errors.Is(err, ErrInactiveAdmin):
			httpx.RespondError(w, fmt.Errorf("%w: operator account disabled", httpx.ErrForbidden))
			return
		case err != nil:
			m.logger.Error("verify operator", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, admin)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}
