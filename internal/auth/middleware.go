package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	claimsLocal   = "claims"
	deviceIDLocal = "device_id"
)

// JWTMiddleware validates bearer tokens and stores the claims and
// device_id in locals.
func JWTMiddleware(secret string) fiber.Handler {
	return jwtMiddleware([]byte(secret), true)
}

// OptionalJWTMiddleware lets requests without an Authorization header
// through untouched. A token that is present must still be valid.
func OptionalJWTMiddleware(secret string) fiber.Handler {
	return jwtMiddleware([]byte(secret), false)
}

func jwtMiddleware(secret []byte, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" && !required {
			return c.Next()
		}
		token := bearerFromHeader(header)
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		claims, err := parseClaims(token, secret)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		c.Locals(claimsLocal, claims)
		c.Locals(deviceIDLocal, claims.DeviceID)
		return c.Next()
	}
}

// ClaimsFrom returns the claims JWTMiddleware stored for this request.
func ClaimsFrom(c *fiber.Ctx) (*Claims, bool) {
	claims, ok := c.Locals(claimsLocal).(*Claims)
	return claims, ok && claims != nil
}

// ClaimsGate answers the location permission question from a token claim.
type ClaimsGate struct {
	Claims *Claims
}

func (g ClaimsGate) RequestForegroundPermission(context.Context) (bool, error) {
	return g.Claims != nil && g.Claims.LocationPermission == PermissionGranted, nil
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
