package config

import "fmt"

// JWTConfig holds configuration for bearer token validation and signing.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// NewJWTConfig builds a JWT configuration for secret. The token lifetime
// comes from JWT_EXPIRATION_HOURS (default 24).
func NewJWTConfig(secret string) (*JWTConfig, error) {
	c := &JWTConfig{
		Secret:          secret,
		ExpirationHours: GetEnvInt("JWT_EXPIRATION_HOURS", 24),
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}
	return c, nil
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT secret cannot be empty")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
