package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/pkg/artifacts"
	"github.com/sdlcloop/controller/pkg/loopregistry"
)

// mapServiceError maps package-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	if ent.IsNotFound(err) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if ent.IsConstraintError(err) {
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	}
	if errors.Is(err, artifacts.ErrArtifactNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "artifact not found")
	}
	if errors.Is(err, loopregistry.ErrActiveLoopExists) {
		return echo.NewHTTPError(http.StatusConflict, "an active loop already exists for this user/thread")
	}

	slog.Error("Unexpected control-plane error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
