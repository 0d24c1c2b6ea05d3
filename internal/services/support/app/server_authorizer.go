package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/louisbranch/supportdesk/internal/platform/requestctx"
)

// wsAuthorizer resolves the identity behind a storefront token.
type wsAuthorizer interface {
	Authenticate(ctx context.Context, accessToken string) (requestctx.Identity, error)
}

// storefrontClaims mirrors the token the storefront issues at login.
type storefrontClaims struct {
	UserID  string `json:"_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
	jwt.RegisteredClaims
}

// tokenAuthorizer verifies HS256 tokens signed with the storefront secret.
type tokenAuthorizer struct {
	secret []byte
	now    func() time.Time
}

func newTokenAuthorizer(secret string) wsAuthorizer {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &tokenAuthorizer{secret: []byte(secret), now: time.Now}
}

func (a *tokenAuthorizer) Authenticate(_ context.Context, accessToken string) (requestctx.Identity, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return requestctx.Identity{}, errors.New("access token is required")
	}

	var claims storefrontClaims
	_, err := jwt.ParseWithClaims(accessToken, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return requestctx.Identity{}, fmt.Errorf("verify token: %w", err)
	}

	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		return requestctx.Identity{}, errors.New("token has no user id")
	}
	return requestctx.Identity{
		UserID:  userID,
		Name:    strings.TrimSpace(claims.Name),
		IsAdmin: claims.IsAdmin,
	}, nil
}

// accessTokenFromRequest reads the token from the session cookie, a bearer
// Authorization header, or the token query parameter, in that order.
func accessTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if cookie, err := r.Cookie(tokenCookieName); err == nil {
		if token := strings.TrimSpace(cookie.Value); token != "" {
			return token
		}
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
