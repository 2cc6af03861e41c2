package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/sdlcloop/controller/pkg/causeid"
	"github.com/sdlcloop/controller/pkg/signalinbox"
)

// daemonTerminalEventHandler handles POST /api/v1/daemon-events/terminal,
// reported by the coding-agent daemon when its attached terminal session
// for a loop ends. Unlike GitHub deliveries, this event carries the target
// loop ID directly rather than requiring a repo/PR lookup.
func (s *Server) daemonTerminalEventHandler(c *echo.Context) error {
	var req DaemonTerminalEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.EventID == "" || req.LoopID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "event_id and loop_id are required")
	}

	ctx := c.Request().Context()
	if _, err := s.client.Loop.Get(ctx, req.LoopID); err != nil {
		return mapServiceError(err)
	}

	now := time.Now()
	in := causeid.Input{
		CauseType: causeid.CauseDaemonTerminal,
		EventID:   req.EventID,
	}
	payload := map[string]interface{}{"event_id": req.EventID}

	if _, err := signalinbox.EnqueueSignal(ctx, s.client, req.LoopID, in, payload, now); err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusAccepted, &WebhookAckResponse{
		DeliveryID: req.EventID,
		Outcome:    "accepted",
	})
}
