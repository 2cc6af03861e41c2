package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/sdlcloop/controller/pkg/causeid"
	"github.com/sdlcloop/controller/pkg/loopregistry"
	"github.com/sdlcloop/controller/pkg/signalinbox"
	"github.com/sdlcloop/controller/pkg/webhookclaim"
)

const (
	headerGithubEvent     = "X-GitHub-Event"
	headerGithubDelivery  = "X-GitHub-Delivery"
	headerGithubSignature = "X-Hub-Signature-256"

	maxWebhookBodySize = 1 << 20 // 1 MB
)

// --- minimal GitHub webhook payload shapes ---
// Only the fields this controller actually consumes are modeled; the
// rest of GitHub's payload passes through untouched in the stored
// signal-inbox row's raw payload.

type ghPullRequestRef struct {
	ID     int64  `json:"id"`
	Number int    `json:"number"`
	Merged bool   `json:"merged"`
	Head   struct {
		SHA string `json:"sha"`
	} `json:"head"`
}

type ghCheckRun struct {
	ID           int64              `json:"id"`
	PullRequests []ghPullRequestRef `json:"pull_requests"`
}

type ghCheckSuite struct {
	ID           int64              `json:"id"`
	PullRequests []ghPullRequestRef `json:"pull_requests"`
}

type ghReview struct {
	ID    int64  `json:"id"`
	State string `json:"state"`
}

type ghComment struct {
	ID int64 `json:"id"`
}

type ghRepository struct {
	FullName string `json:"full_name"`
}

type githubWebhookPayload struct {
	Action      string            `json:"action"`
	Repository  ghRepository      `json:"repository"`
	PullRequest *ghPullRequestRef `json:"pull_request"`
	CheckRun    *ghCheckRun       `json:"check_run"`
	CheckSuite  *ghCheckSuite     `json:"check_suite"`
	Review      *ghReview         `json:"review"`
	Comment     *ghComment        `json:"comment"`
}

// githubWebhookHandler handles POST /api/v1/webhooks/github. It verifies
// the delivery's HMAC signature, admits it exactly-once via webhookclaim,
// maps the event to a canonical cause, resolves the target loop from the
// repo/PR the event names, and enqueues the signal for the worker pool to
// process on its next tick.
func (s *Server) githubWebhookHandler(c *echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBodySize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if len(body) > maxWebhookBodySize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "webhook payload too large")
	}

	if s.webhookSecret != nil {
		sig := c.Request().Header.Get(headerGithubSignature)
		if !verifyWebhookSignature(s.webhookSecret, sig, body) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook signature")
		}
	}

	deliveryID := c.Request().Header.Get(headerGithubDelivery)
	if deliveryID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing "+headerGithubDelivery+" header")
	}
	eventName := c.Request().Header.Get(headerGithubEvent)

	if eventName == "ping" {
		return c.JSON(http.StatusOK, &WebhookAckResponse{DeliveryID: deliveryID, Outcome: "ping"})
	}

	ctx := c.Request().Context()
	now := time.Now()

	claim, err := webhookclaim.Claim(ctx, s.client, deliveryID, s.instanceID, eventName, s.cfg.WebhookClaim.TTL, now)
	if err != nil {
		return mapServiceError(err)
	}
	if !claim.Outcome.ShouldProcess() {
		return c.JSON(claim.Outcome.HTTPStatus(), &WebhookAckResponse{
			DeliveryID: deliveryID,
			Outcome:    string(claim.Outcome),
		})
	}

	var payload githubWebhookPayload
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON payload")
	}

	causeInput, err := mapGithubEventToCause(eventName, deliveryID, payload)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	prNumber, ok := resolvePRNumber(payload)
	outcome := string(claim.Outcome)
	if ok {
		loopRow, err := loopregistry.GetActiveLoopForPR(ctx, s.client, payload.Repository.FullName, prNumber)
		if err != nil {
			return mapServiceError(err)
		}
		if loopRow != nil {
			var rawPayload map[string]interface{}
			if err := json.Unmarshal(body, &rawPayload); err != nil {
				rawPayload = map[string]interface{}{}
			}
			if _, err := signalinbox.EnqueueSignal(ctx, s.client, loopRow.ID, causeInput, rawPayload, now); err != nil {
				return mapServiceError(err)
			}
		} else {
			outcome = "no_active_loop"
		}
	} else {
		outcome = "no_pr_reference"
	}

	if _, err := webhookclaim.Complete(ctx, s.client, deliveryID, s.instanceID, now); err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusAccepted, &WebhookAckResponse{DeliveryID: deliveryID, Outcome: outcome})
}

// mapGithubEventToCause builds the causeid.Input for a GitHub webhook
// delivery, following the encodings causeid.Construct expects.
func mapGithubEventToCause(eventName, deliveryID string, payload githubWebhookPayload) (causeid.Input, error) {
	switch eventName {
	case "check_run":
		if payload.CheckRun == nil {
			return causeid.Input{}, fmt.Errorf("check_run event missing check_run object")
		}
		return causeid.Input{
			CauseType:  causeid.CauseCheckRunCompleted,
			DeliveryID: deliveryID,
			CheckRunID: strconv.FormatInt(payload.CheckRun.ID, 10),
		}, nil

	case "check_suite":
		if payload.CheckSuite == nil {
			return causeid.Input{}, fmt.Errorf("check_suite event missing check_suite object")
		}
		return causeid.Input{
			CauseType:    causeid.CauseCheckSuiteCompleted,
			DeliveryID:   deliveryID,
			CheckSuiteID: strconv.FormatInt(payload.CheckSuite.ID, 10),
		}, nil

	case "pull_request":
		if payload.PullRequest == nil {
			return causeid.Input{}, fmt.Errorf("pull_request event missing pull_request object")
		}
		prID := strconv.FormatInt(payload.PullRequest.ID, 10)
		switch payload.Action {
		case "synchronize":
			return causeid.Input{
				CauseType:     causeid.CausePullRequestSynchronize,
				DeliveryID:    deliveryID,
				PullRequestID: prID,
				HeadSha:       payload.PullRequest.Head.SHA,
			}, nil
		case "closed":
			merged := payload.PullRequest.Merged
			return causeid.Input{
				CauseType:     causeid.CausePullRequestClosed,
				DeliveryID:    deliveryID,
				PullRequestID: prID,
				Merged:        &merged,
			}, nil
		case "reopened":
			return causeid.Input{
				CauseType:     causeid.CausePullRequestReopened,
				DeliveryID:    deliveryID,
				PullRequestID: prID,
			}, nil
		case "edited":
			return causeid.Input{
				CauseType:     causeid.CausePullRequestEdited,
				DeliveryID:    deliveryID,
				PullRequestID: prID,
			}, nil
		default:
			return causeid.Input{}, fmt.Errorf("unsupported pull_request action %q", payload.Action)
		}

	case "pull_request_review":
		if payload.Review == nil {
			return causeid.Input{}, fmt.Errorf("pull_request_review event missing review object")
		}
		return causeid.Input{
			CauseType:   causeid.CausePullRequestReview,
			DeliveryID:  deliveryID,
			ReviewID:    strconv.FormatInt(payload.Review.ID, 10),
			ReviewState: payload.Review.State,
		}, nil

	case "pull_request_review_comment":
		if payload.Comment == nil {
			return causeid.Input{}, fmt.Errorf("pull_request_review_comment event missing comment object")
		}
		return causeid.Input{
			CauseType:  causeid.CausePullRequestReviewComment,
			DeliveryID: deliveryID,
			CommentID:  strconv.FormatInt(payload.Comment.ID, 10),
		}, nil

	default:
		return causeid.Input{}, fmt.Errorf("unsupported event type %q", eventName)
	}
}

// resolvePRNumber finds the PR number an event refers to, whether carried
// directly (pull_request.* events) or via the pull_requests list GitHub
// attaches to check_run/check_suite events.
func resolvePRNumber(payload githubWebhookPayload) (int, bool) {
	if payload.PullRequest != nil {
		return payload.PullRequest.Number, true
	}
	if payload.CheckRun != nil && len(payload.CheckRun.PullRequests) > 0 {
		return payload.CheckRun.PullRequests[0].Number, true
	}
	if payload.CheckSuite != nil && len(payload.CheckSuite.PullRequests) > 0 {
		return payload.CheckSuite.PullRequests[0].Number, true
	}
	return 0, false
}
