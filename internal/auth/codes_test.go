package auth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/d9705996/confera/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateJoinCode(t *testing.T) {
	seen := map[string]bool{}
	for range 50 {
		code, err := auth.GenerateJoinCode()
		require.NoError(t, err)
		assert.Len(t, code, auth.JoinCodeLength)
		assert.Equal(t, strings.ToUpper(code), code)
		assert.NotContains(t, code, "O")
		assert.NotContains(t, code, "0")
		assert.NotContains(t, code, "I")
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestNormalizeJoinCode(t *testing.T) {
	assert.Equal(t, "ABCD2345", auth.NormalizeJoinCode("  abcd2345 "))
}

func TestGenerateAndHashToken(t *testing.T) {
	raw, err := auth.GenerateToken()
	require.NoError(t, err)
	assert.Len(t, raw, 64)

	h := auth.HashToken(raw)
	assert.Len(t, h, 64)
	assert.NotEqual(t, raw, h)
	assert.Equal(t, h, auth.HashToken(raw))
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Acme":                "acme",
		"Acme Corp, Inc.":     "acme-corp-inc",
		"  --Hello   World--": "hello-world",
		"Ünïcödé":            "n-c-d",
		"!!!":                 "org",
	}
	for in, want := range cases {
		assert.Equal(t, want, auth.Slugify(in), in)
	}
	assert.LessOrEqual(t, len(auth.Slugify(strings.Repeat("long name ", 20))), 48)
}

func TestCookiePolicy_Development(t *testing.T) {
	rec := httptest.NewRecorder()
	auth.CookiePolicy{MaxAge: 7 * 24 * time.Hour}.SetRefreshCookie(rec, "tok")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, auth.RefreshCookieName, c.Name)
	assert.Equal(t, "tok", c.Value)
	assert.True(t, c.HttpOnly)
	assert.False(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 7*24*60*60, c.MaxAge)
	assert.Equal(t, "/", c.Path)
}

func TestCookiePolicy_Production(t *testing.T) {
	rec := httptest.NewRecorder()
	auth.CookiePolicy{Production: true, MaxAge: time.Hour}.SetRefreshCookie(rec, "tok")

	c := rec.Result().Cookies()[0]
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
}

func TestCookiePolicy_Clear(t *testing.T) {
	rec := httptest.NewRecorder()
	auth.CookiePolicy{}.ClearRefreshCookie(rec)

	c := rec.Result().Cookies()[0]
	assert.Equal(t, "", c.Value)
	assert.Equal(t, -1, c.MaxAge)
}

func TestRefreshTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Empty(t, auth.RefreshTokenFromRequest(req))

	req.AddCookie(&http.Cookie{Name: auth.RefreshCookieName, Value: "abc"})
	assert.Equal(t, "abc", auth.RefreshTokenFromRequest(req))
}
