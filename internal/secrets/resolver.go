package secrets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/mirror-adapter/internal/venue"
	pkgsecrets "github.com/Checker-Finance/mirror-adapter/pkg/secrets"
)

// CredentialsResolver resolves per-follower venue credentials from AWS
// Secrets Manager, caching results locally to reduce API calls.
//
// Secret naming convention: {env}/{follower}/{venue}
type CredentialsResolver struct {
	logger   *zap.Logger
	env      string
	venue    string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[venue.Credentials]
}

// NewCredentialsResolver constructs a per-follower credentials resolver.
func NewCredentialsResolver(
	logger *zap.Logger,
	env string,
	venueName string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[venue.Credentials],
) *CredentialsResolver {
	return &CredentialsResolver{
		logger:   logger,
		env:      env,
		venue:    venueName,
		provider: provider,
		cache:    cache,
	}
}

// cacheKey builds the in-memory cache key for a follower.
func (r *CredentialsResolver) cacheKey(follower string) string {
	return strings.ToLower(fmt.Sprintf("%s|%s", follower, r.venue))
}

// secretName builds the AWS Secrets Manager key for a follower.
// Pattern: {env}/{follower}/{venue}
func (r *CredentialsResolver) secretName(follower string) string {
	return strings.ToLower(fmt.Sprintf("%s/%s/%s", r.env, follower, r.venue))
}

// Resolve fetches or caches venue credentials for a follower account.
func (r *CredentialsResolver) Resolve(ctx context.Context, follower string) (venue.Credentials, error) {
	key := r.cacheKey(follower)

	if creds, ok := r.cache.Get(key); ok {
		return creds, nil
	}

	secretName := r.secretName(follower)
	secretMap, err := r.provider.GetSecret(ctx, secretName)
	if err != nil {
		r.logger.Warn("aws.secret_fetch_failed",
			zap.String("key", secretName),
			zap.Error(err))
		return venue.Credentials{}, fmt.Errorf("resolve credentials for %q: %w", follower, err)
	}

	creds, err := parseCredentials(secretMap)
	if err != nil {
		return venue.Credentials{}, fmt.Errorf("parse secret %q: %w", secretName, err)
	}

	r.cache.Put(key, creds)

	r.logger.Info("aws.credentials_resolved",
		zap.String("follower", follower),
		zap.String("venue", r.venue),
	)
	return creds, nil
}

// parseCredentials extracts venue credentials from the raw secret map.
func parseCredentials(secret map[string]string) (venue.Credentials, error) {
	creds := venue.Credentials{
		RPCURL: secret["rpc_url"],
		APIKey: secret["api_key"],
	}
	if creds.RPCURL == "" {
		return venue.Credentials{}, fmt.Errorf("secret missing rpc_url")
	}
	if creds.APIKey == "" {
		return venue.Credentials{}, fmt.Errorf("secret missing api_key")
	}
	return creds, nil
}

// DiscoverFollowers lists all follower accounts that have venue credentials
// configured. It searches for secrets matching the prefix "{env}/" and
// ending with "/{venue}", then extracts the account from the middle segment.
func (r *CredentialsResolver) DiscoverFollowers(ctx context.Context) ([]string, error) {
	prefix := strings.ToLower(fmt.Sprintf("%s/", r.env))
	suffix := "/" + r.venue

	names, err := r.provider.ListSecrets(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("discover followers: %w", err)
	}

	var followers []string
	for _, name := range names {
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, suffix) {
			continue
		}
		trimmed := strings.TrimPrefix(lower, prefix)
		trimmed = strings.TrimSuffix(trimmed, suffix)
		if trimmed != "" && !strings.Contains(trimmed, "/") {
			followers = append(followers, trimmed)
		}
	}

	r.logger.Info("aws.followers_discovered",
		zap.Int("count", len(followers)),
	)
	return followers, nil
}
