package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/snapstate/internal/value"
)

// maxResponseBody caps the response data read for error messages (64 KiB).
const maxResponseBody int64 = 64 << 10

// IdempotencyHeader carries the action's idempotency key.
const IdempotencyHeader = "Idempotency-Key"

// HTTPDispatcher POSTs each action to <endpoint>/actions/<type> with the
// payload as canonical JSON. Any 2xx response confirms the action.
type HTTPDispatcher struct {
	endpoint string
	client   *http.Client
}

// NewHTTPDispatcher creates a dispatcher for endpoint. A zero timeout means
// no client-side timeout.
func NewHTTPDispatcher(endpoint string, timeout time.Duration) *HTTPDispatcher {
	return &HTTPDispatcher{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

// Call implements Dispatcher.
func (d *HTTPDispatcher) Call(ctx context.Context, actionType string, payload value.Object) error {
	if payload == nil {
		payload = value.Object{}
	}
	body, err := value.MarshalCanonical(payload)
	if err != nil {
		return &CallError{Type: actionType, Err: fmt.Errorf("encode payload: %w", err)}
	}

	target := d.endpoint + "/actions/" + url.PathEscape(actionType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return &CallError{Type: actionType, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if key, ok := IdempotencyKey(ctx); ok {
		req.Header.Set(IdempotencyHeader, key)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &CallError{Type: actionType, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	text := strings.TrimSpace(string(msg))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return &CallError{Type: actionType, Status: resp.StatusCode, Err: errors.New(text)}
}
