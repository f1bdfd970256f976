package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ContextUserID is the gin context key under which the middleware stores
// the authenticated user's id.
const ContextUserID = "userID"

// ContextUsername holds the authenticated user's display name.
const ContextUsername = "username"

// Auth issues and validates the signed tokens that replace the old
// guess-able "token-<id>" scheme.
type Auth struct {
	secretKey []byte
	validity  time.Duration
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func New(secretKey string) (*Auth, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	return &Auth{secretKey: []byte(secretKey), validity: 24 * time.Hour}, nil
}

// GenerateToken creates a signed JWT for the given user.
func (a *Auth) GenerateToken(userID uuid.UUID, username string) (string, error) {
	now := time.Now()
	c := &claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.validity)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(a.secretKey)
}

// ParseToken validates a token string and returns the user id and
// username embedded in it.
func (a *Auth) ParseToken(tokenString string) (uuid.UUID, string, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secretKey, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, "", fmt.Errorf("invalid or expired token")
	}

	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid subject claim")
	}

	return userID, c.Username, nil
}

// Middleware returns a gin middleware that rejects requests without a
// valid bearer token and stores the caller's identity in the context.
func (a *Auth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Token não fornecido",
			})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Formato de token inválido",
			})
			return
		}

		userID, username, err := a.ParseToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Token inválido",
			})
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextUsername, username)
		c.Next()
	}
}
