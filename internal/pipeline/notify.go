package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hakim/scandeck/internal/models"
)

// NotifyConfig configures where to send completion notifications.
type NotifyConfig struct {
	WebhookURL string // if empty, no notifications
	Client     *http.Client
}

// completionPayload is the JSON body posted to the webhook endpoint.
type completionPayload struct {
	Target          string            `json:"target"`
	ScanID          string            `json:"scan_id"`
	Kind            models.ScanKind   `json:"kind"`
	Status          models.ScanStatus `json:"status"`
	PhasesRun       []string          `json:"phases_run"`
	ElapsedSeconds  float64           `json:"elapsed_seconds"`
	RiskLevel       models.Severity   `json:"risk_level,omitempty"`
	Score           int               `json:"score"`
	Vulnerabilities int               `json:"vulnerabilities"`
	Errors          map[string]string `json:"errors"`
}

// SendCompletion posts a JSON summary of a finished scan to the webhook URL.
// Returns nil if WebhookURL is empty (no-op). Callers should treat errors as
// warnings.
func (n *NotifyConfig) SendCompletion(ctx context.Context, rec models.ScanRecord) error {
	if n == nil || n.WebhookURL == "" {
		return nil
	}

	payload := completionPayload{
		Target:          rec.Target,
		ScanID:          rec.ID,
		Kind:            rec.Kind,
		Status:          rec.Status,
		PhasesRun:       []string{},
		ElapsedSeconds:  rec.Duration().Seconds(),
		Score:           rec.Statistics.Score,
		Vulnerabilities: len(rec.Results.Vulnerabilities),
		Errors:          map[string]string{},
	}
	if rec.Status == models.StatusCompleted {
		payload.RiskLevel = rec.Statistics.RiskLevel
	}
	for _, p := range rec.Phases {
		switch p.Status {
		case models.PhaseCompleted:
			payload.PhasesRun = append(payload.PhasesRun, p.Name)
		case models.PhaseFailed:
			payload.PhasesRun = append(payload.PhasesRun, p.Name)
			payload.Errors[p.Name] = p.Error
		}
	}
	if rec.Error != "" && len(payload.Errors) == 0 {
		payload.Errors["scan"] = rec.Error
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: posting to %s: %w", n.WebhookURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned non-2xx status %d", resp.StatusCode)
	}

	return nil
}
