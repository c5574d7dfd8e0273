package dialogflow

import "strings"

// Substrings in a webhook status message that indicate the webhook endpoint
// failed. HTTP status codes are matched verbatim since the remote API embeds
// them in the message text.
var webhookErrorIndicators = []string{
	"error",
	"failed",
	"timeout",
	"unreachable",
	"connection refused",
	"certificate",
	"ssl",
}

var webhookErrorCodes = []string{
	"400", "401", "403", "404", "500", "502", "503", "504",
}

// analyzeWebhook derives a WebhookInfo from the webhook status messages
// returned with a turn. A failing webhook is reported with an ERROR status
// but never fails the turn itself.
func analyzeWebhook(statuses []string, payloadSeen, enabled bool) WebhookInfo {
	if !enabled {
		return WebhookInfo{Status: "disabled"}
	}

	if len(statuses) == 0 {
		if payloadSeen {
			return WebhookInfo{Called: true, Status: "OK"}
		}
		return WebhookInfo{Status: "not_configured"}
	}

	info := WebhookInfo{Called: true}
	var messages []string
	healthy := true

	for _, status := range statuses {
		message := strings.TrimSpace(status)
		if message == "" {
			continue
		}
		messages = append(messages, message)
		if webhookStatusFailed(message) {
			healthy = false
		}
	}

	switch {
	case healthy && len(messages) == 0:
		info.Status = "OK"
	case healthy:
		info.Status = "OK - " + strings.Join(messages, "; ")
	default:
		info.Status = "ERROR - " + strings.Join(messages, "; ")
	}

	return info
}

func webhookStatusFailed(message string) bool {
	lower := strings.ToLower(message)
	for _, indicator := range webhookErrorIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	for _, code := range webhookErrorCodes {
		if strings.Contains(message, code) {
			return true
		}
	}
	return false
}
