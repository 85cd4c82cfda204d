package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Mode      string // "none", "api-key", "jwt"
	APIKey    string
	JWTSecret string
}

// userIDKey is the Locals key holding the authenticated user's ID.
const userIDKey = "user_id"

// NewAuthMiddleware returns a Fiber middleware that establishes the caller's
// identity. Every /api route requires a user: from the X-User-ID header in
// "none" and "api-key" modes, from the JWT subject in "jwt" mode.
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		switch cfg.Mode {
		case "api-key":
			token, ok := bearerToken(c)
			if !ok {
				return nil
			}
			if cfg.APIKey == "" || token != cfg.APIKey {
				logger.Warn().Str("path", path).Str("method", c.Method()).
					Msg("unauthorized request: invalid API key")
				return problemResponse(c, fiber.StatusUnauthorized,
					"invalid_credentials", "Unauthorized", "Invalid API key")
			}

		case "jwt":
			token, ok := bearerToken(c)
			if !ok {
				return nil
			}
			sub, err := jwtSubject(token, cfg.JWTSecret)
			if err != nil {
				logger.Warn().Str("path", path).Err(err).
					Msg("unauthorized request: invalid token")
				return problemResponse(c, fiber.StatusUnauthorized,
					"invalid_token", "Unauthorized", "Invalid or expired token")
			}
			c.Locals(userIDKey, sub)
			return c.Next()
		}

		userID := c.Get("X-User-ID")
		if userID == "" {
			return problemResponse(c, fiber.StatusUnauthorized,
				"missing_user", "Unauthorized", "X-User-ID header is required")
		}
		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

// bearerToken extracts the bearer token, writing a 401 and returning
// ok=false when the header is missing or malformed.
func bearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		_ = problemResponse(c, fiber.StatusUnauthorized,
			"missing_auth", "Unauthorized", "Authorization header is required")
		return "", false
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		_ = problemResponse(c, fiber.StatusUnauthorized,
			"invalid_auth_scheme", "Unauthorized", "Authorization header must use Bearer scheme")
		return "", false
	}
	return strings.TrimPrefix(authHeader, "Bearer "), true
}

// jwtSubject validates an HS256 token and returns its subject claim.
func jwtSubject(tokenStr, secret string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", jwt.ErrTokenInvalidSubject
	}
	return sub, nil
}

// currentUser returns the authenticated user ID from Locals.
func currentUser(c *fiber.Ctx) string {
	if id, ok := c.Locals(userIDKey).(string); ok {
		return id
	}
	return ""
}
