package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/support-relay-api/logger"
)

// TelegramSecretHeader carries the secret_token given to setWebhook
const TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// AuthError represents a rejected webhook delivery
type AuthError struct {
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// CheckWebhookSecret compares the provided header value with the expected secret.
// An empty expected secret is a configuration error, never an open door.
func CheckWebhookSecret(expected, provided string) *AuthError {
	if expected == "" {
		return &AuthError{Status: http.StatusInternalServerError, Code: "WEBHOOK_NOT_CONFIGURED", Message: "Webhook not configured"}
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
		return &AuthError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Unauthorized"}
	}
	return nil
}

// RequireWebhookSecret rejects webhook deliveries whose secret header does not
// match secret.
func RequireWebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authErr := CheckWebhookSecret(secret, c.GetHeader(TelegramSecretHeader)); authErr != nil {
			if authErr.Status == http.StatusInternalServerError {
				logger.Errorw("TELEGRAM_WEBHOOK_SECRET not configured, rejecting webhook delivery")
			} else {
				logger.Warnw("Telegram webhook: invalid secret token", "client_ip", c.ClientIP())
			}

			c.AbortWithStatusJSON(authErr.Status, gin.H{
				"success": false,
				"error": gin.H{
					"code":    authErr.Code,
					"message": authErr.Message,
				},
			})
			return
		}

		c.Next()
	}
}
