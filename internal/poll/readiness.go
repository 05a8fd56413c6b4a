package poll

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds a single readiness probe request
const DefaultRequestTimeout = time.Second

// StatusError records a server-error response seen while polling
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

// WaitForHTTP polls url with GET requests until any response below 500 arrives.
// Connection errors and 5xx responses count as "not ready yet".
func WaitForHTTP(ctx context.Context, client *http.Client, url string, opts Options) error {
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}

	err := Until(ctx, opts, func(ctx context.Context) (bool, error) {
		return probeHTTP(ctx, client, url)
	})
	if err != nil {
		return fmt.Errorf("server at %s not ready: %w", url, err)
	}
	return nil
}

func probeHTTP(ctx context.Context, client *http.Client, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Close = true

	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return false, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return true, nil
}
