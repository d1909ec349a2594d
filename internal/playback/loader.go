package playback

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Loader prepares a media URL for playback. Load returns an error when the
// media cannot be fetched or decoded.
type Loader interface {
	Load(ctx context.Context, url string) error
}

// HTTPLoader verifies the media URL is fetchable before playback starts.
type HTTPLoader struct {
	Client *http.Client
}

func (l *HTTPLoader) Load(ctx context.Context, url string) error {
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building media request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching media: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching media: unexpected status %d", resp.StatusCode)
	}
	return nil
}
