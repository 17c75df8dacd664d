package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/sessionauth/middleware"
)

const refreshTokenCookie = "refreshToken"

type cookieJar struct {
	refreshPath string
	production  bool
	accessTTL   time.Duration
	refreshTTL  time.Duration
	now         func() time.Time
}

func newCookieJar(basePath string, production bool, accessTTL, refreshTTL time.Duration) *cookieJar {
	return &cookieJar{
		refreshPath: strings.TrimRight(basePath, "/") + "/auth/refresh",
		production:  production,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		now:         time.Now,
	}
}

func (j *cookieJar) sameSite() http.SameSite {
	if j.production {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

func (j *cookieJar) set(c *gin.Context, name, value, path string, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  j.now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   j.production,
		SameSite: j.sameSite(),
	})
}

func (j *cookieJar) clear(c *gin.Context, name, path string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.production,
		SameSite: j.sameSite(),
	})
}

func (j *cookieJar) setAccess(c *gin.Context, token string) {
	j.set(c, middleware.AccessTokenCookie, token, "/", j.accessTTL)
}

func (j *cookieJar) setRefresh(c *gin.Context, token string) {
	j.set(c, refreshTokenCookie, token, j.refreshPath, j.refreshTTL)
}

func (j *cookieJar) setPair(c *gin.Context, access, refresh string) {
	j.setAccess(c, access)
	j.setRefresh(c, refresh)
}

func (j *cookieJar) clearPair(c *gin.Context) {
	j.clear(c, middleware.AccessTokenCookie, "/")
	j.clear(c, refreshTokenCookie, j.refreshPath)
}
