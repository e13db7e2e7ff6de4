package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

// SlackNotifier sends system alerts to Slack via webhook
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify posts the alert to the webhook
func (s *SlackNotifier) Notify(ctx context.Context, alert models.SystemAlert) error {
	payload := map[string]interface{}{
		"text": FormatMessage(alert, "*"),
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Slack webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// FormatMessage renders an alert; bold wraps the title in the target's markup
func FormatMessage(alert models.SystemAlert, bold string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s %s%s%s\n", emojiFor(alert.Type), bold, strings.ToUpper(alert.Type)+" ALERT", bold))
	sb.WriteString(alert.Message)
	if alert.Cooldown > 0 {
		sb.WriteString(fmt.Sprintf("\nCooldown: %.0fs", alert.Cooldown))
	}
	sb.WriteString(fmt.Sprintf("\nRaised: %s", alert.RaisedAt.Format("15:04:05")))

	return sb.String()
}

func emojiFor(alertType string) string {
	switch alertType {
	case "critical":
		return "🚨"
	case "warning":
		return "⚠️"
	default:
		return "ℹ️"
	}
}
