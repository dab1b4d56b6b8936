package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"
)

const (
	userAgent      = "s3purge-notifier/1"
	webhookTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// StatusError is returned when the webhook answers outside 2xx.
type StatusError struct {
	Status string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "webhook returned " + e.Status
	}
	return fmt.Sprintf("webhook returned %s: %s", e.Status, e.Body)
}

type webhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
}

func NewWebhook(url string, headers map[string]string) (Notifier, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("config.url is required")
	}
	return &webhookNotifier{
		url:     url,
		headers: maps.Clone(headers),
		client:  &http.Client{Timeout: webhookTimeout},
	}, nil
}

// Notify posts the event as JSON.
func (w *webhookNotifier) Notify(ctx context.Context, event Event) error {
	req, err := w.newRequest(ctx, event)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s event for %s: %w", event.Status, event.Job, err)
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

func (w *webhookNotifier) newRequest(ctx context.Context, event Event) (*http.Request, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Status: resp.Status,
		Code:   resp.StatusCode,
		Body:   strings.TrimSpace(string(snippet)),
	}
}
