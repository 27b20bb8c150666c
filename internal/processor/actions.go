package processor

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/showrunner/internal/slack"
)

// InteractionEvent matches the slack-gateway interaction event format.
type InteractionEvent struct {
	ActionID  string `json:"action_id"`
	Value     string `json:"value"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	ChannelID string `json:"channel_id"`
	MessageTS string `json:"message_ts"`
	TriggerID string `json:"trigger_id"`
}

// HandleReviewAction processes approve and reject button clicks on review messages.
func (p *Processor) HandleReviewAction(subject string, data []byte) {
	var evt InteractionEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Warn("failed to parse interaction event", "error", err)
		return
	}

	var verdict slack.ReviewVerdict
	var rawID string
	switch {
	case strings.HasPrefix(evt.ActionID, slack.ActionApprove):
		verdict = slack.VerdictApproved
		rawID = strings.TrimPrefix(evt.ActionID, slack.ActionApprove)
	case strings.HasPrefix(evt.ActionID, slack.ActionReject):
		verdict = slack.VerdictRejected
		rawID = strings.TrimPrefix(evt.ActionID, slack.ActionReject)
	default:
		return // not a review action, ignore
	}

	runID, err := uuid.Parse(rawID)
	if err != nil {
		p.logger.Warn("review action with invalid run id", "action_id", evt.ActionID, "error", err)
		return
	}

	// A button click settles the review just like a reaction would.
	p.takeReview(evt.MessageTS)

	reviewer := evt.UserName
	if reviewer == "" {
		reviewer = evt.UserID
	}
	p.logger.Info("processing review action", "verdict", string(verdict), "run_id", runID, "reviewer", reviewer)
	p.recordVerdict(context.Background(), runID, verdict, reviewer, evt.MessageTS)
}
