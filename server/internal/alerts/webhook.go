package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/followbell/followbell/server/internal/metrics"
)

// teamsColor is the accent colour of Teams message cards.
const teamsColor = "00FFA3"

// deliver sends a to all configured targets. Errors are logged and counted
// but do not affect the caller.
func (e *Engine) deliver(ctx context.Context, a *Alert) {
	e.mu.Lock()
	webhooks := e.webhooks
	e.mu.Unlock()

	for _, wh := range webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body []byte
		switch wh.Type {
		case "slack":
			body = slackPayload(a)
		case "discord":
			body = discordPayload(a)
		case "teams":
			body = teamsPayload(a)
		case "http":
			body = httpPayload(a)
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		err := e.post(ctx, url, body)
		metrics.IncAlertDelivery(wh.Type, err)
		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"follower", a.FollowerID,
				"err", err,
			)
		} else {
			slog.Debug("alerts: webhook delivered", "type", wh.Type, "follower", a.FollowerID)
		}
	}
}

func slackPayload(a *Alert) []byte {
	body, _ := json.Marshal(map[string]string{"text": "*New follower* " + a.Message})
	return body
}

func discordPayload(a *Alert) []byte {
	body, _ := json.Marshal(map[string]string{"content": "**New follower** " + a.Message})
	return body
}

func teamsPayload(a *Alert) []byte {
	body, _ := json.Marshal(map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": teamsColor,
		"summary":    "New follower",
		"title":      fmt.Sprintf("New follower: %s", a.Nickname),
		"text":       a.Message,
	})
	return body
}

func httpPayload(a *Alert) []byte {
	body, _ := json.Marshal(map[string]any{"alert": a})
	return body
}

func (e *Engine) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
