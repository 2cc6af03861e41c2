package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/pkg/config"
	"github.com/sdlcloop/controller/pkg/loopregistry"
)

// loopToResponse converts an ent.Loop row to its wire representation.
func loopToResponse(row *ent.Loop) *LoopResponse {
	return &LoopResponse{
		ID:                 row.ID,
		UserID:             row.UserID,
		RepoFullName:       row.RepoFullName,
		PRNumber:           row.PrNumber,
		ThreadID:           row.ThreadID,
		State:              string(row.State),
		PlanApprovalPolicy: string(row.PlanApprovalPolicy),
		CurrentHeadSha:     row.CurrentHeadSha,
		FixAttemptCount:    row.FixAttemptCount,
		MaxFixAttempts:     row.MaxFixAttempts,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

// enrollLoopHandler handles POST /api/v1/loops.
func (s *Server) enrollLoopHandler(c *echo.Context) error {
	var req EnrollRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" || req.RepoFullName == "" || req.ThreadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id, repo_full_name and thread_id are required")
	}

	now := time.Now()
	in := loopregistry.EnrollInput{
		UserID:             req.UserID,
		RepoFullName:       req.RepoFullName,
		PRNumber:           req.PRNumber,
		ThreadID:           req.ThreadID,
		PlanApprovalPolicy: req.PlanApprovalPolicy,
		MaxFixAttempts:     req.MaxFixAttempts,
		Now:                now,
	}
	if req.CurrentHeadSha != "" {
		in.CurrentHeadSha = &req.CurrentHeadSha
	}
	defaults := config.DefaultLoopDefaultsConfig()
	if s.cfg != nil && s.cfg.LoopDefaults != nil {
		defaults = s.cfg.LoopDefaults
	}
	if in.PlanApprovalPolicy == "" {
		in.PlanApprovalPolicy = defaults.PlanApprovalPolicy
	}
	if in.MaxFixAttempts == 0 {
		in.MaxFixAttempts = defaults.MaxFixAttempts
	}

	row, err := loopregistry.Enroll(c.Request().Context(), s.client, in)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, loopToResponse(row))
}

// getActiveLoopForPRHandler handles GET /api/v1/loops/by-pr?repo_full_name=&pr_number=.
func (s *Server) getActiveLoopForPRHandler(c *echo.Context) error {
	repoFullName := c.QueryParam("repo_full_name")
	prNumberStr := c.QueryParam("pr_number")
	if repoFullName == "" || prNumberStr == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "repo_full_name and pr_number are required")
	}
	prNumber, err := strconv.Atoi(prNumberStr)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "pr_number must be an integer")
	}

	row, err := loopregistry.GetActiveLoopForPR(c.Request().Context(), s.client, repoFullName, prNumber)
	if err != nil {
		return mapServiceError(err)
	}
	if row == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active loop for this PR")
	}
	return c.JSON(http.StatusOK, loopToResponse(row))
}

// getActiveLoopForThreadHandler handles GET /api/v1/loops/by-thread?user_id=&thread_id=.
func (s *Server) getActiveLoopForThreadHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	threadID := c.QueryParam("thread_id")
	if userID == "" || threadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and thread_id are required")
	}

	row, err := loopregistry.GetActiveLoopForThread(c.Request().Context(), s.client, userID, threadID)
	if err != nil {
		return mapServiceError(err)
	}
	if row == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active loop for this thread")
	}
	return c.JSON(http.StatusOK, loopToResponse(row))
}

// approvePlanHandler handles POST /api/v1/loops/:id/approve-plan.
func (s *Server) approvePlanHandler(c *echo.Context) error {
	loopID := c.Param("id")

	var req ApprovePlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ArtifactID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "artifact_id is required")
	}

	userID := req.UserID
	if userID == "" {
		userID = extractAuthor(c)
	}

	artifact, err := loopregistry.ApprovePlan(c.Request().Context(), s.client, loopID, req.ArtifactID, userID, time.Now())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"artifact_id": artifact.ID,
		"status":      string(artifact.Status),
	})
}

// manualStopHandler handles POST /api/v1/loops/:id/manual-stop.
func (s *Server) manualStopHandler(c *echo.Context) error {
	loopID := c.Param("id")

	var req ManualStopRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Reason == "" {
		req.Reason = "manual_stop"
	}

	if err := loopregistry.ManualStop(c.Request().Context(), s.client, loopID, req.Reason, time.Now()); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &ManualStopResponse{
		LoopID:  loopID,
		Message: "loop stopped",
	})
}
