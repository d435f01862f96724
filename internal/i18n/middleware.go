package i18n

import (
	"github.com/gin-gonic/gin"
)

// Middleware injects a localizer built from the request's Accept-Language
// header (or ?lang=) into the request context.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		loc := NewLocalizer(c.Query("lang"), c.GetHeader("Accept-Language"))
		c.Request = c.Request.WithContext(WithLocalizer(c.Request.Context(), loc))
		c.Next()
	}
}
