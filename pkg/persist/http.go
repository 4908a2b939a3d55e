package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPStore persists records through the application backend's internal API.
// The relay treats it as a black box: one POST per record, the acknowledged
// record comes back in the response body.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ Store = (*HTTPStore)(nil)

func NewHTTPStore(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(slog.String("component", "persist_http")),
	}
}

func (s *HTTPStore) SaveMessage(ctx context.Context, msg Message) (Message, error) {
	var saved Message
	if err := s.post(ctx, "/api/internal/messages", msg, &saved); err != nil {
		return Message{}, fmt.Errorf("persist message: %w", err)
	}
	return saved, nil
}

func (s *HTTPStore) SaveNotification(ctx context.Context, n Notification) (Notification, error) {
	var saved Notification
	if err := s.post(ctx, "/api/internal/notifications", n, &saved); err != nil {
		return Notification{}, fmt.Errorf("persist notification: %w", err)
	}
	return saved, nil
}

func (s *HTTPStore) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, snippet)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
