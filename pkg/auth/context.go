package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/chainsafe/swap-coordinator/pkg/app/errors"
	apphttp "github.com/chainsafe/swap-coordinator/pkg/app/http"
)

type contextKey string

// ContextKeyWalletID is the context key for the authenticated wallet id
const ContextKeyWalletID contextKey = "wallet_id"

// WithWalletID adds the wallet id to the context
func WithWalletID(ctx context.Context, walletID string) context.Context {
	return context.WithValue(ctx, ContextKeyWalletID, walletID)
}

// WalletIDFromContext retrieves the wallet id from the context
func WalletIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextKeyWalletID).(string)
	return id, ok && id != ""
}

// WalletResolver maps a bearer token to a wallet id.
type WalletResolver interface {
	WalletID(ctx context.Context, token string) (string, error)
}

// Middleware requires a valid bearer token and stores its wallet id in the
// request context.
func Middleware(resolver WalletResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "bearer token required"))
				return
			}
			walletID, err := resolver.WalletID(r.Context(), token)
			if err != nil {
				logger.Debug("Rejected bearer token", zap.Error(err))
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(err, "invalid token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithWalletID(r.Context(), walletID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
