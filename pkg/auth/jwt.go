// Package auth authenticates API callers with JWT bearer tokens signed by a
// JWKS-published RSA key.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chainsafe/swap-coordinator/pkg/config"
)

// ErrMissingWallet is returned when a valid token carries no wallet claim.
var ErrMissingWallet = errors.New("token has no wallet claim")

// WalletClaim is the claim holding the caller's wallet id. The subject is
// used when it is absent.
const WalletClaim = "wallet_id"

// minRefresh bounds how often an unknown kid can trigger a JWKS fetch.
const minRefresh = 30 * time.Second

var signingMethods = []string{"RS256", "RS384", "RS512"}

// JWTValidator validates bearer tokens against the keys of a JWKS endpoint.
type JWTValidator struct {
	issuer string
	keys   *keySet
}

// NewJWTValidator builds a validator for cfg. client may be nil.
func NewJWTValidator(cfg config.AuthConfig, client *http.Client) *JWTValidator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &JWTValidator{
		issuer: cfg.Issuer,
		keys:   &keySet{url: cfg.JWKSURL, client: client, keys: map[string]*rsa.PublicKey{}},
	}
}

// ValidateToken checks signature, expiry and (when configured) issuer.
func (v *JWTValidator) ValidateToken(ctx context.Context, raw string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods(signingMethods)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("missing kid in token header")
		}
		return v.keys.get(ctx, kid)
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims, nil
}

// WalletID validates raw and returns the wallet it was issued for.
func (v *JWTValidator) WalletID(ctx context.Context, raw string) (string, error) {
	claims, err := v.ValidateToken(ctx, raw)
	if err != nil {
		return "", err
	}
	if id, ok := claims[WalletClaim].(string); ok && id != "" {
		return id, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", ErrMissingWallet
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// keySet caches RSA keys by kid and refetches the JWKS document on a miss,
// at most once per minRefresh.
type keySet struct {
	url    string
	client *http.Client

	mu          sync.Mutex
	keys        map[string]*rsa.PublicKey
	lastRefresh time.Time
}

func (s *keySet) get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.keys[kid]; ok {
		return key, nil
	}
	if time.Since(s.lastRefresh) >= minRefresh {
		if err := s.refresh(ctx); err != nil {
			return nil, err
		}
		if key, ok := s.keys[kid]; ok {
			return key, nil
		}
	}
	return nil, fmt.Errorf("key not found: %s", kid)
}

func (s *keySet) refresh(ctx context.Context) error {
	if s.url == "" {
		return errors.New("JWKS URL not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	s.lastRefresh = time.Now()
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		if key, err := k.rsaKey(); err == nil {
			s.keys[k.Kid] = key
		}
	}
	return nil
}

func (k jwk) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}, nil
}
