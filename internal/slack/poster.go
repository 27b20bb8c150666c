package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/showrunner/internal/refinement"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// maxListedIssues caps how many findings a review message shows.
const maxListedIssues = 5

// Action id prefixes of the review buttons. The run id follows the colon.
const (
	ActionApprove = "review_approve:"
	ActionReject  = "review_reject:"
)

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostReviewRequest asks a human to review a run that did not fully pass.
// Returns the message timestamp (ts) which is used for tracking reactions.
func (p *Poster) PostReviewRequest(ctx context.Context, res *refinement.Result) (string, error) {
	text := formatReviewMessage(res)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "actions",
				"elements": []map[string]any{
					button("Approve", "primary", ActionApprove+res.RunID),
					button("Reject", "danger", ActionReject+res.RunID),
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "React: :+1: approve | :-1: reject | :shrug: skip",
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}

	p.logger.Info("posted review to slack", "ts", ts, "run_id", res.RunID)
	return ts, nil
}

// PostThread posts a threaded reply to a message. An empty threadTS posts to the channel.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	payload := map[string]any{
		"channel": p.channel,
		"text":    text,
	}
	if threadTS != "" {
		payload["thread_ts"] = threadTS
	}
	_, err := p.post(ctx, payload)
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func button(label, style, actionID string) map[string]any {
	return map[string]any{
		"type":      "button",
		"text":      map[string]any{"type": "plain_text", "text": label},
		"style":     style,
		"action_id": actionID,
		"value":     strings.SplitN(actionID, ":", 2)[1],
	}
}

func formatReviewMessage(res *refinement.Result) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Episode:* %s\n", res.Script.Title)
	fmt.Fprintf(&sb, "*Run:* `%s` | %s after %d iteration(s)\n", res.RunID, res.State, res.Iterations)

	rep := res.Report
	if rep == nil {
		sb.WriteString("_No validation report._")
		return sb.String()
	}
	fmt.Fprintf(&sb, "*Overall:* %.2f | voice %.2f | comedy %.2f | production %.2f | plot %.2f\n",
		rep.Overall, rep.Scores.VoiceConsistency, rep.Scores.ComedicDistribution,
		rep.Scores.ProductionComplexity, rep.Scores.PlotCoherence)
	fmt.Fprintf(&sb, "*Budget:* %s | *Timing:* %s (%d jokes)\n\n", rep.BudgetTier, res.Analysis.Category, res.Analysis.JokeCount)

	if len(rep.Recommendations) == 0 {
		sb.WriteString("_No issues raised._")
		return sb.String()
	}

	fmt.Fprintf(&sb, "*Issues: %d*\n", len(rep.Recommendations))
	for i, r := range rep.Recommendations {
		if i == maxListedIssues {
			fmt.Fprintf(&sb, "_...and %d more_\n", len(rep.Recommendations)-maxListedIssues)
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r)
	}
	return sb.String()
}
