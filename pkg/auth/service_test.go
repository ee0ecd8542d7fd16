package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockJWKSClient records the token it was asked to validate.
type mockJWKSClient struct {
	claims   *Claims
	err      error
	gotToken string
}

func (m *mockJWKSClient) ValidateToken(tokenString string) (*Claims, error) {
	m.gotToken = tokenString
	if m.err != nil {
		return nil, m.err
	}
	return m.claims, nil
}

func (m *mockJWKSClient) Close() {}

func subjectClaims(sub string) *Claims {
	return &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub}}
}

func TestAuthService_ValidateRequest_Cookie(t *testing.T) {
	jwks := &mockJWKSClient{claims: subjectClaims("auth0|a")}
	service := NewAuthService(jwks, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-token"})
	req.Header.Set("Authorization", "Bearer header-token")

	claims, token, err := service.ValidateRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "cookie-token", token)
	assert.Equal(t, "cookie-token", jwks.gotToken)
	assert.Equal(t, "auth0|a", claims.Subject)
}

func TestAuthService_ValidateRequest_BearerHeader(t *testing.T) {
	jwks := &mockJWKSClient{claims: subjectClaims("auth0|b")}
	service := NewAuthService(jwks, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "bearer header-token")

	_, token, err := service.ValidateRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "header-token", token)
}

func TestAuthService_ValidateRequest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		jwks    *mockJWKSClient
		wantErr error
	}{
		{"no credentials", "", &mockJWKSClient{}, ErrMissingAuthorization},
		{"basic scheme", "Basic abc", &mockJWKSClient{}, ErrInvalidAuthFormat},
		{"empty bearer", "Bearer ", &mockJWKSClient{}, ErrInvalidAuthFormat},
		{"no subject", "Bearer t", &mockJWKSClient{claims: &Claims{}}, ErrMissingSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewAuthService(tt.jwks, zap.NewNop())
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			_, _, err := service.ValidateRequest(req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAuthService_ValidateRequest_InvalidToken(t *testing.T) {
	service := NewAuthService(&mockJWKSClient{err: errors.New("expired")}, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer stale")

	_, _, err := service.ValidateRequest(req)
	assert.EqualError(t, err, "expired")
}
