package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/pkg/config"
)

type jwksFixture struct {
	key       *rsa.PrivateKey
	validator *JWTValidator
	fetches   atomic.Int32
}

func newJWKSFixture(t *testing.T, issuer string) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &jwksFixture{key: key}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.fetches.Add(1)
		_ = json.NewEncoder(w).Encode(map[string][]jwk{"keys": {
			{Kid: "k1", Kty: "RSA", N: base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				E: base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes())},
			{Kid: "ec", Kty: "EC"},
		}})
	}))
	t.Cleanup(srv.Close)

	f.validator = NewJWTValidator(config.AuthConfig{Enabled: true, JWKSURL: srv.URL, Issuer: issuer}, srv.Client())
	return f
}

func (f *jwksFixture) sign(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(f.key)
	require.NoError(t, err)
	return s
}

func TestWalletID(t *testing.T) {
	f := newJWKSFixture(t, "https://issuer.example")
	exp := time.Now().Add(time.Hour).Unix()
	ctx := context.Background()

	id, err := f.validator.WalletID(ctx, f.sign(t, "k1", jwt.MapClaims{"iss": "https://issuer.example", "wallet_id": "w1", "exp": exp}))
	require.NoError(t, err)
	assert.Equal(t, "w1", id)

	id, err = f.validator.WalletID(ctx, f.sign(t, "k1", jwt.MapClaims{"iss": "https://issuer.example", "sub": "w2", "exp": exp}))
	require.NoError(t, err)
	assert.Equal(t, "w2", id)
	assert.Equal(t, int32(1), f.fetches.Load(), "keys are cached")

	_, err = f.validator.WalletID(ctx, f.sign(t, "k1", jwt.MapClaims{"iss": "https://issuer.example", "exp": exp}))
	require.ErrorIs(t, err, ErrMissingWallet)
}

func TestValidateToken_Rejects(t *testing.T) {
	f := newJWKSFixture(t, "https://issuer.example")
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Unix()

	tests := map[string]string{
		"wrong issuer": f.sign(t, "k1", jwt.MapClaims{"iss": "https://other.example", "sub": "w1", "exp": exp}),
		"expired":      f.sign(t, "k1", jwt.MapClaims{"iss": "https://issuer.example", "sub": "w1", "exp": time.Now().Add(-time.Hour).Unix()}),
		"unknown kid":  f.sign(t, "k2", jwt.MapClaims{"iss": "https://issuer.example", "sub": "w1", "exp": exp}),
		"garbage":      "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.validator.ValidateToken(ctx, token)
			require.Error(t, err)
		})
	}
}

func TestMiddleware(t *testing.T) {
	f := newJWKSFixture(t, "")
	var seen string
	handler := Middleware(f.validator, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = WalletIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/swaps", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/swaps", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/swaps", nil)
	req.Header.Set("Authorization", "Bearer "+f.sign(t, "k1", jwt.MapClaims{"wallet_id": "w9"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "w9", seen)
}

func TestUnknownKid_RefreshIsThrottled(t *testing.T) {
	f := newJWKSFixture(t, "")
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Unix()

	for range 3 {
		_, err := f.validator.WalletID(ctx, f.sign(t, "rotated", jwt.MapClaims{"sub": "w1", "exp": exp}))
		require.Error(t, err)
	}
	assert.Equal(t, int32(1), f.fetches.Load())

	_, ok := f.validator.keys.keys["ec"]
	assert.False(t, ok, "non-RSA keys are ignored")
}
