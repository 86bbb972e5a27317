package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	cache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

// TokenCacheEntry stores validated token info
type TokenCacheEntry struct {
	Subject string // "sub" claim
}

type ContextKey string

// SubjectKey is the context key of the authenticated subject
const SubjectKey ContextKey = "subject"

// Subject returns the subject stored by the middleware, if any.
func Subject(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(SubjectKey).(string)
	return sub, ok
}

// Authenticator verifies HS256 bearer tokens signed with a shared secret. Verified
// tokens are cached until they expire.
type Authenticator struct {
	secret []byte
	tokens *cache.Cache
	now    func() time.Time
}

func New(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		// cache with 24-hour default expiration and 1-hour cleanup interval
		tokens: cache.New(24*time.Hour, time.Hour),
		now:    time.Now,
	}
}

// Enabled reports whether a secret is configured. Without one the middleware lets
// every request through.
func (a *Authenticator) Enabled() bool { return len(a.secret) > 0 }

// IssueToken signs a token for subject valid for ttl.
func (a *Authenticator) IssueToken(subject string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("auth: no secret configured")
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Middleware to validate bearer JWTs with caching
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, `{"error": "Missing or invalid Authorization header"}`, http.StatusUnauthorized)
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == "" {
			http.Error(w, `{"error": "Missing or invalid Authorization header"}`, http.StatusUnauthorized)
			return
		}

		// Check cache first
		if cached, found := a.tokens.Get(tokenStr); found {
			if entry, ok := cached.(TokenCacheEntry); ok {
				ctx := context.WithValue(r.Context(), SubjectKey, entry.Subject)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		claims, err := a.verify(tokenStr)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("Auth: token rejected")
			http.Error(w, fmt.Sprintf(`{"error": "Unauthorized: %v"}`, err), http.StatusForbidden)
			return
		}

		if claims.ExpiresAt != nil {
			if ttl := claims.ExpiresAt.Sub(a.now()); ttl > 0 {
				a.tokens.Set(tokenStr, TokenCacheEntry{Subject: claims.Subject}, ttl)
			}
		}
		log.Debug().Str("subject", claims.Subject).Msg("Auth: token verified")

		ctx := context.WithValue(r.Context(), SubjectKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verify validates the token signature and expiry.
func (a *Authenticator) verify(tokenStr string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
