package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
)

func TestServer_Routes_RejectWrongMethod(t *testing.T) {
	s := &Server{echo: echo.New(), cfg: testConfig()}
	s.setupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/github", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_WSHandler_Returns503WithoutConnManager(t *testing.T) {
	s := &Server{echo: echo.New(), cfg: testConfig()}
	s.setupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
