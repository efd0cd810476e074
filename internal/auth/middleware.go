package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/storefront-api/internal/domain"
	"github.com/joao-fontenele/storefront-api/internal/httpx"
)

type actorKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(domain.Actor)
	return actor, ok
}

// AccountLookup returns nil, nil for an unknown user.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

type Middleware struct {
	tokens   *TokenIssuer
	accounts AccountLookup
	logger   *slog.Logger
}

func NewMiddleware(tokens *TokenIssuer, logger *slog.Logger) *Middleware {
	return &Middleware{tokens: tokens, logger: logger}
}

// WithAccounts reloads the token's user on every request, so deactivation
// and staff changes apply to tokens that are already issued.
func (m *Middleware) WithAccounts(accounts AccountLookup) *Middleware {
	m.accounts = accounts
	return m
}

// Require rejects requests without a valid bearer token.
func (m *Middleware) Require(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := m.authenticate(r)
		if err != nil {
			httpx.WriteDomainError(w, m.logger, err, "failed to load account", "path", r.URL.Path)
			return
		}
		h(w, r.WithContext(WithActor(r.Context(), actor)))
	}
}

func (m *Middleware) authenticate(r *http.Request) (domain.Actor, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return domain.Actor{}, domain.ErrUnauthenticated
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return domain.Actor{}, domain.ErrUnauthenticated
	}

	actor, err := m.tokens.Parse(parts[1])
	if err != nil {
		m.logger.Info("rejected bearer token", "error", err)
		return domain.Actor{}, domain.ErrUnauthenticated
	}

	if m.accounts == nil {
		return actor, nil
	}

	user, err := m.accounts.GetByID(r.Context(), actor.UserID)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("get user %s: %w", actor.UserID, err)
	}
	if user == nil || !user.IsActive {
		m.logger.Info("rejected token of missing or inactive user", "user_id", actor.UserID)
		return domain.Actor{}, domain.ErrUnauthenticated
	}

	return domain.Actor{
		UserID:  user.ID,
		Email:   user.Email,
		Name:    user.Name,
		IsStaff: user.IsStaff,
	}, nil
}
