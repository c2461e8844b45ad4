package service

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthService guards the trigger and history endpoints with a shared bearer
// secret.
type AuthService struct {
	logger *zap.Logger
	secret string
}

func NewAuthService(logger *zap.Logger, secret string) *AuthService {
	return &AuthService{
		logger: logger,
		secret: secret,
	}
}

// Enabled reports whether a secret is configured.
func (a *AuthService) Enabled() bool {
	return a.secret != ""
}

// ValidateToken compares token with the secret in constant time.
func (a *AuthService) ValidateToken(token string) bool {
	if !a.Enabled() || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.secret)) == 1
}

func (a *AuthService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Cron secret is not configured"})
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || !a.ValidateToken(token) {
			a.logger.Warn("Rejected unauthorized request",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
