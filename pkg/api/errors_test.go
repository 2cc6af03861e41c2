package api

import (
	"fmt"
	"net/http"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/pkg/artifacts"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
		expectMsg  string
	}{
		{
			name:       "artifact not found maps to 404",
			err:        fmt.Errorf("wrapped: %w", artifacts.ErrArtifactNotFound),
			expectCode: http.StatusNotFound,
			expectMsg:  "artifact not found",
		},
		{
			name:       "unknown error maps to 500",
			err:        fmt.Errorf("something unexpected happened"),
			expectCode: http.StatusInternalServerError,
			expectMsg:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapServiceError(tt.err)
			assert.IsType(t, &echo.HTTPError{}, he)
			assert.Equal(t, tt.expectCode, he.Code)
			assert.Contains(t, he.Error(), tt.expectMsg)
		})
	}
}

func TestMapServiceError_NotFound(t *testing.T) {
	notFound := &ent.NotFoundError{}
	he := mapServiceError(notFound)
	assert.Equal(t, http.StatusNotFound, he.Code)
}
