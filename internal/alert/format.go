package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("toolwarden: %s %s", event.Tool, event.Outcome),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Tool:* %s", event.Tool)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Role:* %s", event.Role)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Outcome:* %s", event.Outcome)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", reasonFor(event))},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("toolwarden %s: %s (%s)", event.Outcome, event.Tool, reasonFor(event)),
			"severity": severityFor(event.Outcome),
			"source":   "toolwarden",
			"custom_details": map[string]any{
				"tool":        event.Tool,
				"role":        event.Role,
				"rule":        event.Rule,
				"error":       event.Error,
				"policy_hash": event.PolicyHash,
			},
		},
	}
	return json.Marshal(payload)
}

func reasonFor(event Event) string {
	switch {
	case event.Rule != "":
		return "rule " + event.Rule
	case event.Error != "":
		return event.Error
	default:
		return "none"
	}
}

func severityFor(outcome string) string {
	switch outcome {
	case "blocked":
		return "warning"
	case "error":
		return "error"
	default:
		return "info"
	}
}
