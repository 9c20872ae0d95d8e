package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// PushNotifier posts messages to a webhook-style messaging provider. When
// a WS registry is attached it tries the live session first and only
// falls back to HTTP.
type PushNotifier struct {
	Endpoint string
	Token    string
	Client   *http.Client
	WS       *WSNotifier

	// Attempts and BaseDelay bound the retry loop for transient provider
	// failures.
	Attempts  int
	BaseDelay time.Duration
}

func NewPushNotifier(endpoint, token string, ws *WSNotifier) *PushNotifier {
	return &PushNotifier{
		Endpoint:  endpoint,
		Token:     token,
		Client:    &http.Client{Timeout: 3 * time.Second},
		WS:        ws,
		Attempts:  3,
		BaseDelay: 200 * time.Millisecond,
	}
}

func (p *PushNotifier) Send(ctx context.Context, userID, template string, data map[string]any, controls []Control) error {
	if p.WS != nil {
		if err := p.WS.Send(ctx, userID, template, data, controls); err == nil {
			return nil
		} else if !errors.Is(err, ErrNoSession) {
			// stale session; fall through to HTTP
			p.WS.Remove(userID)
		}
	}
	body, _ := json.Marshal(map[string]any{
		"to":       userID,
		"template": template,
		"data":     data,
		"controls": controls,
	})

	delay := p.BaseDelay
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		lastErr = p.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		var se *providerError
		if errors.As(lastErr, &se) && !se.transient() {
			// the provider rejected the payload; retrying cannot help
			return lastErr
		}
	}
	return lastErr
}

// providerError is a non-2xx response from the messaging provider.
type providerError struct{ status int }

func (e *providerError) Error() string   { return fmt.Sprintf("provider status %d", e.status) }
func (e *providerError) transient() bool { return e.status >= 500 }

func (p *PushNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &providerError{status: resp.StatusCode}
	}
	return nil
}
