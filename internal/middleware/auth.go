package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/valis-ai/valis/internal/config"
	"github.com/valis-ai/valis/internal/modules/serializer"
)

// AdminAuth guards administrative routes with the configured root bearer
// token. An empty token in config rejects every request.
func AdminAuth(cfg *config.Config) gin.HandlerFunc {
	want := []byte(cfg.Root.AdminBearerToken)
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || len(want) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, serializer.AuthErr("Unauthorized"))
			return
		}
		got := []byte(strings.TrimPrefix(auth, "Bearer "))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, serializer.AuthErr("Unauthorized"))
			return
		}

		span := trace.SpanFromContext(c.Request.Context())
		if span.SpanContext().IsValid() {
			span.SetAttributes(attribute.Bool("admin", true))
		}
		c.Next()
	}
}
