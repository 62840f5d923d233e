package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func ok(body string) gin.HandlerFunc {
	return func(c *gin.Context) { c.String(http.StatusOK, body) }
}

func TestRouter_BasePath(t *testing.T) {
	assert.Equal(t, "/api/v1", New(gin.New()).BasePath())
	assert.Equal(t, "/api/v2", New(gin.New(), WithAPIVersion("v2")).BasePath())
}

func TestRouter_Mount(t *testing.T) {
	engine := gin.New()
	r := New(engine)
	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) }

	r.Group("fees", "/fees", deny).POST("/generate", ok("generated"))
	r.Group("catalog", "").GET("/fee-heads", ok("heads"))
	r.Group("settlements", "/settlements/:year_id").
		GET("/summary", func(c *gin.Context) { c.String(http.StatusOK, c.Param("year_id")) }).
		POST("/settle", ok("settled"))
	r.Group("invoices", "/invoices").GET("", ok("list"))

	bound := r.Mount()

	assert.Equal(t, []RouteInfo{
		{Group: "fees", Method: http.MethodPost, Path: "/api/v1/fees/generate", Guarded: true},
		{Group: "catalog", Method: http.MethodGet, Path: "/api/v1/fee-heads"},
		{Group: "settlements", Method: http.MethodGet, Path: "/api/v1/settlements/:year_id/summary"},
		{Group: "settlements", Method: http.MethodPost, Path: "/api/v1/settlements/:year_id/settle"},
		{Group: "invoices", Method: http.MethodGet, Path: "/api/v1/invoices"},
	}, bound)

	t.Run("group middleware guards only its group", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodPost, "/api/v1/fees/generate").Code)
		assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/fee-heads").Code)
	})

	t.Run("prefix parameters reach the handler", func(t *testing.T) {
		w := serve(engine, http.MethodGet, "/api/v1/settlements/2026/summary")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2026", w.Body.String())
	})

	t.Run("group root route", func(t *testing.T) {
		assert.Equal(t, "list", serve(engine, http.MethodGet, "/api/v1/invoices").Body.String())
	})

	t.Run("unbound method is not routed", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/api/v1/fees/generate").Code)
	})

	t.Run("second mount binds nothing", func(t *testing.T) {
		assert.Empty(t, r.Mount())
	})
}

func TestJoinPaths(t *testing.T) {
	tests := []struct {
		base, relative, want string
	}{
		{"/api/v1", "", "/api/v1"},
		{"", "/fee-heads", "/fee-heads"},
		{"/invoices", "/:id", "/invoices/:id"},
		{"/api/v1", "/system/", "/api/v1/system/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, joinPaths(tt.base, tt.relative))
	}
}
