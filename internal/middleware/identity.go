package middleware

import "github.com/labstack/echo/v4"

// ActorID returns the authenticated user id stored by JWTAuth, or "" when
// the request is anonymous.
func ActorID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok {
		return s
	}
	return ""
}

// Role returns the authenticated user's role, or "".
func Role(c echo.Context) string {
	if s, ok := c.Get("role").(string); ok {
		return s
	}
	return ""
}
