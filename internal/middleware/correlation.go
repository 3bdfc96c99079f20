// Package middleware holds gin middleware for the HTTP bootstrap
// surface (health/metrics/upgrade routes). Adapted from the teacher's
// request-correlation middleware, repointed at logging's connection-id
// context key instead of an HTTP request id.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kirillsirotkin/quizlobby/internal/logging"
)

const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID assigns (or propagates) a correlation id for each HTTP
// request, echoes it in the X-Correlation-ID response header, and stores
// it in the gin context under "connection_id". The WebSocket session
// does not reuse it: ServeWs logs under the fresh connection id that the
// session allocates.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderXCorrelationID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderXCorrelationID, id)
		c.Set(string(logging.ConnectionIDKey), id)
		c.Next()
	}
}
