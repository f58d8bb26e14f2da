package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/iliyamo/fitbook/internal/config"
	"github.com/iliyamo/fitbook/internal/utils"
)

const secret = "test-secret"

func whoami(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"user_id": ActorID(c), "role": Role(c)})
}

func serve(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAndRole(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret), RequireRole(RoleCoach, RoleGym))

	tok, err := utils.NewAccessToken(secret, "coach-7", RoleCoach, time.Hour)
	require.NoError(t, err)
	rec := serve(e, tok.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "coach-7", gjson.Get(rec.Body.String(), "user_id").String())
	assert.Equal(t, RoleCoach, gjson.Get(rec.Body.String(), "role").String())

	client, err := utils.NewAccessToken(secret, "client-1", RoleClient, time.Hour)
	require.NoError(t, err)
	rec = serve(e, client.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", gjson.Get(rec.Body.String(), "error").String())
}

func TestJWTAuthRejects(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret))

	rec := serve(e, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing bearer token", gjson.Get(rec.Body.String(), "error").String())

	wrong, err := utils.NewAccessToken("other-secret", "u1", RoleClient, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(e, wrong.Token).Code)

	expired, err := utils.NewAccessToken(secret, "u1", RoleClient, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(e, expired.Token).Code)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "role": RoleClient}).SignedString([]byte(secret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(e, noExp).Code)

	noRole, err := utils.NewAccessToken(secret, "u1", "", time.Hour)
	require.NoError(t, err)
	rec = serve(e, noRole.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid claims", gjson.Get(rec.Body.String(), "error").String())
}

func TestNilRedisPassesThrough(t *testing.T) {
	e := echo.New()
	rl := config.RateLimitConfig{Enabled: true, Capacity: 1}
	cc := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}
	e.GET("/me", whoami, NewTokenBucket(rl, nil), NewRedisCache(cc, nil))
	for i := 0; i < 3; i++ {
		rec := serve(e, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.JSONEq(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0})
	assert.False(t, ok)
}

func TestKeys(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings/b1/accept?x=1", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/bookings/:id/accept")
	c.Set("user_id", "coach-1")

	key := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user_route"}, c)
	assert.Equal(t, "rl:user:coach-1:route:POST /v1/bookings/:id/accept", key)

	a := cacheKeyFrom(config.CacheConfig{Prefix: "cache"}, c)
	c.Request().URL.RawQuery = "x=2"
	b := cacheKeyFrom(config.CacheConfig{Prefix: "cache"}, c)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^cache:[0-9a-f]{40}$`, a)
}
