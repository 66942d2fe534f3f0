package crypto

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJWKSServer(t *testing.T, kid string, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	set := jwks{Keys: []jsonWebKey{{
		Kty: "RSA",
		Use: "sig",
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, kid string, key *rsa.PrivateKey, claims HelixClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestJWKSVerifyToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := newJWKSServer(t, "k1", key)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	verifier, err := NewJWKSCachingClient(ctx, JWKSConfig{URL: srv.URL, Issuer: "https://idp.example"}, nil)
	require.NoError(t, err)

	valid := HelixClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "bjensen",
			Issuer:    "https://idp.example",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		SessionID: "s-1",
	}

	t.Run("valid token", func(t *testing.T) {
		claims, err := verifier.VerifyToken(ctx, signToken(t, "k1", key, valid))
		require.NoError(t, err)
		assert.Equal(t, "bjensen", claims.Subject)
		assert.Equal(t, "s-1", claims.SessionID)
	})

	t.Run("expired token", func(t *testing.T) {
		expired := valid
		expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		_, err := verifier.VerifyToken(ctx, signToken(t, "k1", key, expired))
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := valid
		other.Issuer = "https://evil.example"
		_, err := verifier.VerifyToken(ctx, signToken(t, "k1", key, other))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown kid", func(t *testing.T) {
		_, err := verifier.VerifyToken(ctx, signToken(t, "k2", key, valid))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := verifier.VerifyToken(ctx, "not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestJWKSConfigRequired(t *testing.T) {
	_, err := NewJWKSCachingClient(context.Background(), JWKSConfig{}, nil)
	assert.Error(t, err)
}
