package auth

import (
	"errors"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/librarycatalog/library-server/internal/domain"
	"github.com/librarycatalog/library-server/internal/id"
)

const (
	tokenIssuer   = "library-server"
	tokenAudience = "library-client"

	claimUsername = "username"
	claimUserID   = "id"
)

// ErrTokenExpired is returned by Verify for tokens past their exp claim.
var ErrTokenExpired = errors.New("token expired")

// TokenService issues and verifies PASETO v4.local access tokens.
type TokenService struct {
	symmetricKey paseto.V4SymmetricKey
	ttl          time.Duration
	now          func() time.Time
}

// NewTokenService creates a token service. A zero ttl issues tokens without an expiry claim.
func NewTokenService(key []byte, ttl time.Duration) (*TokenService, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("token key must be exactly %d bytes, got %d", keyLength, len(key))
	}

	symmetricKey, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create PASETO symmetric key: %w", err)
	}

	return &TokenService{
		symmetricKey: symmetricKey,
		ttl:          ttl,
		now:          time.Now,
	}, nil
}

// Issue creates a token carrying the user's username and id.
func (s *TokenService) Issue(user *domain.User) (string, error) {
	now := s.now()

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(user.ID)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	if s.ttl > 0 {
		token.SetExpiration(now.Add(s.ttl))
	}

	tokenID, err := id.Generate("token")
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}
	token.SetJti(tokenID)

	if err := token.Set(claimUsername, user.Username); err != nil {
		return "", fmt.Errorf("set username claim: %w", err)
	}
	if err := token.Set(claimUserID, user.ID); err != nil {
		return "", fmt.Errorf("set id claim: %w", err)
	}

	return token.V4Encrypt(s.symmetricKey, nil), nil
}

// Verify decrypts and checks a token. Tokens carrying an exp claim are rejected
// once it has passed, whatever the current ttl setting.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))

	token, err := parser.ParseV4Local(s.symmetricKey, tokenString, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims := &Claims{}
	if claims.Username, err = token.GetString(claimUsername); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.UserID, err = token.GetString(claimUserID); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !id.HasPrefix(claims.UserID, id.PrefixUser) {
		return nil, fmt.Errorf("invalid token: malformed user id %q", claims.UserID)
	}
	if iat, err := token.GetIssuedAt(); err == nil {
		claims.IssuedAt = iat
	}
	if exp, err := token.GetExpiration(); err == nil {
		if !s.now().Before(exp) {
			return nil, ErrTokenExpired
		}
		claims.ExpiresAt = &exp
	}

	return claims, nil
}
