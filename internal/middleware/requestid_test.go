package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otapush/acquisition/internal/observability"
)

func TestRequestIDGeneratesID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seenID string
	var seenCtxID string

	router := gin.New()
	router.Use(RequestID())
	router.GET("/updateCheck", func(c *gin.Context) {
		seenID = c.GetString(RequestIDKey)
		seenCtxID = observability.RequestIDFromContext(c.Request.Context())
		c.String(http.StatusOK, "OK")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/updateCheck", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	echoed := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, echoed)

	// Generated ids are UUIDs
	_, err := uuid.Parse(echoed)
	assert.NoError(t, err)

	// The same id is visible to handlers and to the request context
	assert.Equal(t, echoed, seenID)
	assert.Equal(t, echoed, seenCtxID)
}

func TestRequestIDKeepsInboundID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seenID string

	router := gin.New()
	router.Use(RequestID())
	router.GET("/updateCheck", func(c *gin.Context) {
		seenID = c.GetString(RequestIDKey)
		c.String(http.StatusOK, "OK")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/updateCheck", nil)
	req.Header.Set(RequestIDHeader, "lb-assigned-id")
	router.ServeHTTP(w, req)

	assert.Equal(t, "lb-assigned-id", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "lb-assigned-id", seenID)
}

func TestRequestIDUniquePerRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestID())
	router.GET("/updateCheck", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	ids := make(map[string]bool)
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/updateCheck", nil)
		router.ServeHTTP(w, req)
		ids[w.Header().Get(RequestIDHeader)] = true
	}

	assert.Len(t, ids, 10)
}
