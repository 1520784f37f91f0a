package secrets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/whalepay/storefront/internal/metrics"
	pkgsecrets "github.com/whalepay/storefront/pkg/secrets"
)

// TokenResolver resolves the Crypto Pay API token. A token supplied directly
// via configuration wins; otherwise the named secret is fetched from the
// secrets provider and cached in-memory until its TTL expires.
type TokenResolver struct {
	logger     *zap.Logger
	envToken   string
	secretName string
	provider   pkgsecrets.Provider
	cache      *pkgsecrets.Cache[string]
}

// NewTokenResolver constructs a resolver. provider may be nil when envToken
// is set (dev setups without AWS access).
func NewTokenResolver(
	logger *zap.Logger,
	envToken string,
	secretName string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[string],
) *TokenResolver {
	return &TokenResolver{
		logger:     logger,
		envToken:   envToken,
		secretName: secretName,
		provider:   provider,
		cache:      cache,
	}
}

// Resolve returns the provider API token.
func (r *TokenResolver) Resolve(ctx context.Context) (string, error) {
	if r.envToken != "" {
		return r.envToken, nil
	}

	if token, ok := r.cache.Get(r.secretName); ok {
		metrics.IncCacheHit("hit")
		return token, nil
	}
	metrics.IncCacheHit("miss")

	if r.provider == nil {
		return "", fmt.Errorf("no CRYPTO_PAY_TOKEN set and no secrets provider configured")
	}

	secretMap, err := r.provider.GetSecret(ctx, r.secretName)
	if err != nil {
		r.logger.Warn("secrets.token_fetch_failed",
			zap.String("key", r.secretName),
			zap.Error(err))
		return "", fmt.Errorf("resolve provider token: %w", err)
	}

	token := secretMap["token"]
	if token == "" {
		return "", fmt.Errorf("secret %q has no \"token\" field", r.secretName)
	}

	r.cache.Put(r.secretName, token)
	r.logger.Info("secrets.token_resolved", zap.String("key", r.secretName))
	return token, nil
}
