package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kalambet/resqfreeze/internal/profile"
)

// WebhookMessenger posts messages to a WhatsApp gateway as
// {"nomor": phone, "pesan": text} with an x-api-key header.
type WebhookMessenger struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewWebhookMessenger(url, apiKey string) *WebhookMessenger {
	return &WebhookMessenger{url: url, apiKey: apiKey, httpClient: &http.Client{Timeout: 10 * time.Second}}
}

func (m *WebhookMessenger) Send(ctx context.Context, phone, text string) error {
	body, err := json.Marshal(map[string]string{
		"nomor": profile.NormalizePhone(phone),
		"pesan": text,
	})
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("x-api-key", m.apiKey)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting to gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
