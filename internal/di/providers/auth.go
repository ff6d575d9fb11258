package providers

import (
	"github.com/samber/do/v2"

	"github.com/librarycatalog/library-server/internal/auth"
	"github.com/librarycatalog/library-server/internal/config"
	"github.com/librarycatalog/library-server/internal/logger"
	"github.com/librarycatalog/library-server/internal/ratelimit"
)

// defaultSharedPassword is the well-known development password.
const defaultSharedPassword = "secret"

// AuthKey wraps the token signing key bytes.
type AuthKey []byte

// ProvideAuthKey derives the key from the configured secret, or loads or
// generates one under the data path.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Auth.TokenSecret != "" {
		key, err := auth.ParseKey(cfg.Auth.TokenSecret)
		if err != nil {
			return nil, err
		}
		log.Info("Authentication key derived from configuration", "token_ttl", cfg.Auth.TokenTTL)
		return AuthKey(key), nil
	}

	key, err := auth.LoadOrGenerateKey(cfg.Store.DataPath)
	if err != nil {
		return nil, err
	}

	log.Info("Authentication key loaded", "token_ttl", cfg.Auth.TokenTTL)

	return AuthKey(key), nil
}

// ProvideTokenService provides the PASETO token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	authKey := do.MustInvoke[AuthKey](i)

	return auth.NewTokenService([]byte(authKey), cfg.Auth.TokenTTL)
}

// ProvideSharedCredential provides the login password check shared by all users.
func ProvideSharedCredential(i do.Injector) (*auth.SharedCredential, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Auth.SharedPassword == defaultSharedPassword {
		log.Warn("Login uses the default shared password; set AUTH_SHARED_PASSWORD",
			"production", cfg.IsProduction(),
		)
	}

	return auth.NewSharedCredential(cfg.Auth.SharedPassword)
}

// ProvideLoginLimiter provides the per-address login rate limiter.
// KeyedRateLimiter implements Shutdown, which stops its cleanup loop.
func ProvideLoginLimiter(i do.Injector) (*ratelimit.KeyedRateLimiter, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return ratelimit.New(ratelimit.PerMinute(cfg.Auth.LoginRate), cfg.Auth.LoginBurst), nil
}
