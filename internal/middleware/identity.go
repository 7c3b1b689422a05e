package middleware

// identity.go defines helper functions shared across middleware files.  It
// provides member identity extraction from the values JWTAuth stored in the
// Echo context.  When no member is authenticated, "anon" is returned so
// unauthenticated traffic still gets a stable rate-limit bucket.

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

// currentMemberID returns the authenticated member's id as a string, or
// "anon" when the request carries no valid token.  The JWT subject is
// issued as a number but surfaces as a float64 after JSON decoding of the
// claims, so several forms are handled.
func currentMemberID(c echo.Context) string {
	switch v := c.Get("member_id").(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case nil:
	default:
		return fmt.Sprint(v)
	}
	return "anon"
}
