package mw

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"luna-backend/internal/lifecycle"
)

// UserIDKey is the gin context key holding the authenticated user's id.
const UserIDKey = "user_id"

const (
	msgMissingToken = "Authentication required"
	msgInvalidToken = "Invalid authentication"
)

// Auth verifies an HS256 bearer token and stores its subject under UserIDKey.
func Auth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		if len(key) == 0 {
			log.Println("Error: JWT secret is not configured; rejecting authenticated route")
			abortAuth(c, msgInvalidToken)
			return
		}

		tokenString, problem := bearerToken(c.GetHeader("Authorization"))
		if problem != "" {
			abortAuth(c, problem)
			return
		}

		claims := jwt.RegisteredClaims{}
		if _, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
			return key, nil
		}); err != nil {
			log.Printf("Rejected bearer token: %v", err)
			abortAuth(c, msgInvalidToken)
			return
		}
		if claims.Subject == "" {
			abortAuth(c, msgInvalidToken)
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Next()
	}
}

// UserID returns the authenticated user's id, or "" on unauthenticated routes.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// bearerToken extracts the token from an Authorization header. The second result is the rejection message.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", msgMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", msgInvalidToken
	}
	return strings.TrimSpace(token), ""
}

func abortAuth(c *gin.Context, msg string) {
	err := lifecycle.AuthError("authenticate", msg)
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Msg, "kind": err.Kind})
}
