package api

import (
	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// wsHandler upgrades HTTP connections to WebSocket and delegates to the
// ConnectionManager, which blocks until the socket closes.
func (s *Server) wsHandler(c *echo.Context) error {
	if s.connManager == nil {
		return echo.NewHTTPError(503, "realtime feed not available")
	}

	opts := &websocket.AcceptOptions{}
	if origins := s.cfg.System.AllowedWSOrigins; len(origins) > 0 {
		opts.OriginPatterns = origins
	} else {
		// No allowlist configured — this is a local/dev deployment; don't
		// reject same-origin connections behind a reverse proxy stripping
		// the Origin header either.
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), opts)
	if err != nil {
		return err
	}

	s.connManager.HandleConnection(c.Request().Context(), conn)
	return nil
}
