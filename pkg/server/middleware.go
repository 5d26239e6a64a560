package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/menta2k/mood-detector/pkg/types"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestID tags each request with the caller's X-Request-ID or a new UUID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger writes one log line per request.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		size := c.Request.ContentLength
		if size < 0 {
			size = 0
		}

		line := fmt.Sprintf("server: %s %s (%d) %s in %v [%s]",
			c.Request.Method, c.Request.URL.Path, status, humanize.Bytes(uint64(size)), time.Since(start), requestID(c))
		if status >= http.StatusInternalServerError {
			log.Warn(line)
		} else {
			log.Debug(line)
		}
	}
}

// Recovery turns handler panics into the error envelope.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Errorf("server: panic while handling %s [%s]: %v", c.Request.URL.Path, requestID(c), recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, types.ErrorResponse{Error: fmt.Sprint(recovered)})
	})
}

// BodyLimit caps the request body at limit bytes. A limit of zero disables the cap.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

type errorLogWriter struct {
	gin.ResponseWriter
	gc *gin.Context
}

func (w errorLogWriter) Write(b []byte) (int, error) {
	if status := w.gc.Writer.Status(); status >= 400 {
		log.Debugf("server: status %d [%s], body: %s", status, requestID(w.gc), string(b))
	}
	return w.ResponseWriter.Write(b)
}

// ErrorLogMiddleware logs error response bodies. It doesn't work with gzip.
func ErrorLogMiddleware(c *gin.Context) {
	c.Writer = &errorLogWriter{gc: c, ResponseWriter: c.Writer}
	c.Next()
}
