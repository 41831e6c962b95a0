// Package auth authenticates end-user requests carrying HS256 bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const userIDContextKey = "auth_user_id"

var (
	ErrMissingToken = errors.New("authorization header required")
	ErrInvalidToken = errors.New("invalid or expired token")
)

type errorResponse struct {
	Error string `json:"error"`
}

// JWTMiddleware validates the bearer token and stores its subject as the caller's user id.
func JWTMiddleware(secret string, logger logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := ParseBearer(c.Request().Header.Get(echo.HeaderAuthorization), secret)
			if err != nil {
				logger.WithError(err).WithField("path", c.Path()).Warn("Bearer authentication failed")
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			}

			c.Set(userIDContextKey, userID)
			return next(c)
		}
	}
}

// ParseBearer returns the token subject. Only HMAC signatures are accepted.
func ParseBearer(header, secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrInvalidToken
	}

	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == header || strings.TrimSpace(tokenString) == "" {
		return "", ErrMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}

func UserIDFromContext(c echo.Context) string {
	userID, _ := c.Get(userIDContextKey).(string)
	return userID
}
