package middleware

import (
	"net/http"

	"github.com/erp/inventory-engine/internal/domain/document"
	"github.com/erp/inventory-engine/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// Tracing starts a server span per request through otelgin. The span is
// named after the route pattern, e.g. "POST /api/v1/stock/documents/:kind".
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// SpanEnricher adds request_id, actor_id and document_kind to the request
// span and marks it as failed on 5xx responses. Place it after ActorAuth.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if requestID := GetRequestID(c); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		if actorID, ok := GetActorID(c); ok {
			span.SetAttributes(attribute.String("actor_id", actorID.String()))
		}
		if kind := documentKind(c); kind != "" {
			span.SetAttributes(attribute.String(telemetry.SpanAttrDocumentKind, kind))
		}

		c.Next()

		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// documentKind returns the normalized :kind route parameter, or "" when the
// route has none or it is not a known kind
func documentKind(c *gin.Context) string {
	kind, ok := document.ParseKind(c.Param("kind"))
	if !ok {
		return ""
	}
	return kind.String()
}
