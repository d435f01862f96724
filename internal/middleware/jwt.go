package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
)

var errTokenMissing = errors.New("authorization header or token query required")

// TokenValidator turns a bearer token into claims.
type TokenValidator interface {
	ValidateToken(tokenStr string) (*service.Claims, error)
}

// RequireJWT validates a JWT from the Authorization header (or ?token= for
// EventSource and WebSocket clients, which cannot send headers) and, when
// roles are given, requires one of them.
func RequireJWT(auth TokenValidator, roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := extractAndValidateClaims(c, auth)
		if err != nil {
			code := response.ErrTokenInvalid
			switch {
			case errors.Is(err, errTokenMissing):
				code = response.ErrTokenRequired
			case errors.Is(err, jwt.ErrTokenExpired):
				code = response.ErrTokenExpired
			}
			response.AbortFail(c, http.StatusUnauthorized, code)
			return
		}

		c.Set(ContextKeyClaims, claims)
		if len(roles) > 0 && !slices.Contains(roles, claims.Role) {
			response.AbortFail(c, http.StatusForbidden, forbiddenCode(roles))
			return
		}
		c.Next()
	}
}

// RequireStudentJWT admits students only.
func RequireStudentJWT(auth TokenValidator) gin.HandlerFunc {
	return RequireJWT(auth, model.RoleStudent)
}

// RequireTeacherJWT admits teachers and admins.
func RequireTeacherJWT(auth TokenValidator) gin.HandlerFunc {
	return RequireJWT(auth, model.RoleTeacher, model.RoleAdmin)
}

func forbiddenCode(roles []model.Role) response.ErrCode {
	switch {
	case slices.Equal(roles, []model.Role{model.RoleStudent}):
		return response.ErrStudentAccessOnly
	case slices.Contains(roles, model.RoleTeacher):
		return response.ErrTeacherAccessOnly
	default:
		return response.ErrForbidden
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

func extractAndValidateClaims(c *gin.Context, auth TokenValidator) (*service.Claims, error) {
	tokenStr := ""

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenStr = strings.TrimSpace(parts[1])
		}
	}

	// Fallback for EventSource (SSE) and WebSocket upgrades
	if tokenStr == "" {
		tokenStr = c.Query("token")
	}

	if tokenStr == "" {
		return nil, errTokenMissing
	}

	return auth.ValidateToken(tokenStr)
}
