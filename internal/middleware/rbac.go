package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/response"
)

// RequireRole checks that the authenticated user holds one of the given roles.
// Must run after RequireJWT.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if slices.Contains(roles, claims.Role) {
			c.Next()
			return
		}

		response.AbortFail(c, http.StatusForbidden, forbiddenCode(roles))
	}
}
