package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mindwave/backend/internal/model/chat"
	"github.com/zhouzirui/mindwave/backend/pkg/utils"
)

// HeaderUserID carries the caller's id when no JWT secret is configured.
const HeaderUserID = "X-User-ID"

type identityKey struct{}

var errNoCredentials = errors.New("no credentials")

// Authenticator resolves the caller's identity from a bearer JWT or, in
// development, from a trusted header.
type Authenticator struct {
	secret []byte
	logger zerolog.Logger
}

// NewAuthenticator returns an Authenticator. An empty secret trusts the
// X-User-ID header.
func NewAuthenticator(secret string, logger zerolog.Logger) *Authenticator {
	a := &Authenticator{logger: logger.With().Str("component", "auth").Logger()}
	if secret != "" {
		a.secret = []byte(secret)
	}
	return a
}

// Identify attaches the resolved identity to the request context. Requests
// without valid credentials carry an unauthenticated identity.
func (a *Authenticator) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.resolve(r)
		if err != nil && !errors.Is(err, errNoCredentials) {
			a.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected credentials")
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func (a *Authenticator) resolve(r *http.Request) (chat.Identity, error) {
	if a.secret == nil {
		uid := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if uid == "" {
			// Browsers cannot set headers on EventSource or WebSocket requests.
			uid = strings.TrimSpace(r.URL.Query().Get("uid"))
		}
		if uid == "" {
			return chat.Identity{}, errNoCredentials
		}
		return chat.Identity{UserID: uid, Authenticated: true}, nil
	}

	raw := bearerToken(r)
	if raw == "" {
		return chat.Identity{}, errNoCredentials
	}
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return chat.Identity{}, err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return chat.Identity{}, err
	}
	if sub == "" {
		return chat.Identity{}, errors.New("token has no subject")
	}
	return chat.Identity{UserID: sub, Authenticated: true}, nil
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// RequireIdentity rejects requests without an authenticated identity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IdentityFrom(r.Context()).Valid() {
			utils.RespondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithIdentity stores identity in ctx.
func WithIdentity(ctx context.Context, identity chat.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom returns the identity stored by Identify.
func IdentityFrom(ctx context.Context) chat.Identity {
	identity, _ := ctx.Value(identityKey{}).(chat.Identity)
	return identity
}
