package middleware

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"pharos.xyz/statschecker/pkg/apperror"
	"pharos.xyz/statschecker/pkg/response"
)

const adminRole = "admin"

// AdminClaims is the payload of an operator token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	secret     string
	cronSecret string
}

func NewAuthMiddleware(secret, cronSecret string) *AuthMiddleware {
	return &AuthMiddleware{secret: secret, cronSecret: cronSecret}
}

// RequireAdmin guards operator endpoints with an HS256 token carrying
// role=admin. With no secret configured the routes are left open.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return m.guard(false)
}

// RequireRefresh is RequireAdmin that also accepts the static cron secret,
// so an external scheduler can trigger a leaderboard refresh.
func (m *AuthMiddleware) RequireRefresh() gin.HandlerFunc {
	return m.guard(true)
}

func (m *AuthMiddleware) guard(allowCron bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.secret == "" && (!allowCron || m.cronSecret == "") {
			c.Next()
			return
		}

		tokenString := bearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			response.Abort(c, apperror.Wrap(apperror.ErrUnauthorized, "authorization required"))
			return
		}

		if allowCron && m.cronSecret != "" &&
			subtle.ConstantTimeCompare([]byte(tokenString), []byte(m.cronSecret)) == 1 {
			c.Set("caller", "cron")
			c.Next()
			return
		}

		if m.secret == "" {
			response.Abort(c, apperror.Wrap(apperror.ErrUnauthorized, "invalid or expired token"))
			return
		}

		claims, err := m.parse(tokenString)
		if err != nil {
			response.Abort(c, apperror.Wrap(apperror.ErrUnauthorized, "invalid or expired token"))
			return
		}
		if claims.Role != adminRole {
			response.Abort(c, apperror.Wrap(apperror.ErrUnauthorized, "admin access required"))
			return
		}

		c.Set("caller", claims.Subject)
		c.Next()
	}
}

func (m *AuthMiddleware) parse(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
