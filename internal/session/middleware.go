package session

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/squadpulse/service-core/internal/identity"
	"github.com/squadpulse/service-core/internal/respond"
)

// CookieName is the session cookie set by the OAuth gateway. The
// Authorization header takes precedence when both are present.
const CookieName = "squadpulse_session"

type principalKey struct{}

// Resolver is the slice of the identity service the middleware needs.
type Resolver interface {
	EnsureUser(ctx context.Context, p identity.Profile) (*identity.Record, error)
}

// Middleware authenticates every request: it verifies the gateway token,
// resolves (and upserts) the pseudonymous identity, and stores the record
// in the request context. Unauthenticated requests get a uniform 401 before
// any domain logic runs; blocked users get 403.
func Middleware(secret []byte, resolver Resolver, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				if c, err := r.Cookie(CookieName); err == nil {
					raw = c.Value
				}
			}
			if raw == "" {
				respond.Error(w, r, respond.ErrUnauthorized())
				return
			}
			claims, err := ParseToken(secret, raw)
			if err != nil {
				logger.Debugw("session token rejected", "err", err)
				respond.Error(w, r, respond.ErrUnauthorized())
				return
			}
			rec, err := resolver.EnsureUser(r.Context(), identity.Profile{
				AccountID: claims.AccountID,
				Email:     claims.Email,
				Name:      claims.Name,
				Image:     claims.Image,
			})
			if err != nil {
				logger.Errorw("identity resolution failed", "account", claims.AccountID, "err", err)
				respond.Error(w, r, respond.ErrInternal())
				return
			}
			if rec.Blocked {
				respond.Error(w, r, respond.ErrForbidden("account blocked"))
				return
			}
			ctx := context.WithValue(r.Context(), principalKey{}, rec)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithPrincipal returns a context carrying the identity record. Used by
// tests and internal callers that bypass the HTTP middleware.
func WithPrincipal(ctx context.Context, rec *identity.Record) context.Context {
	return context.WithValue(ctx, principalKey{}, rec)
}

// FromContext returns the authenticated identity record, if any.
func FromContext(ctx context.Context) (*identity.Record, bool) {
	rec, ok := ctx.Value(principalKey{}).(*identity.Record)
	return rec, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
