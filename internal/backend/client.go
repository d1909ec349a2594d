// Package backend is the HTTP client for the bot server's dashboard API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mushfiqur/botadmin/internal/chat"
)

// Client talks to one backend instance. All methods honor ctx cancellation.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// History fetches the confirmed message log for one chat. The whole
// response replaces local state; there is no incremental variant.
func (c *Client) History(ctx context.Context, userID string) (HistoryResponse, error) {
	body, err := c.get(ctx, fmt.Sprintf("/chat/%s/messages", url.PathEscape(userID)), nil)
	if err != nil {
		return HistoryResponse{}, err
	}
	return decodeHistory(body), nil
}

// decodeHistory is lenient: a well-formed array of triples becomes
// structured records, anything else becomes an opaque blob. Malformed
// timestamps inside a triple drop to nil rather than failing the record.
func decodeHistory(body []byte) HistoryResponse {
	var triples [][]json.RawMessage
	if err := json.Unmarshal(body, &triples); err != nil {
		return HistoryResponse{Opaque: string(body)}
	}
	records := make([]chat.RawRecord, 0, len(triples))
	for _, t := range triples {
		var rec chat.RawRecord
		if len(t) > 0 {
			json.Unmarshal(t[0], &rec.Sender)
		}
		if len(t) > 1 {
			json.Unmarshal(t[1], &rec.Text)
		}
		if len(t) > 2 {
			rec.Timestamp = decodeTimestamp(t[2])
		}
		records = append(records, rec)
	}
	return HistoryResponse{Structured: true, Records: records}
}

func decodeTimestamp(raw json.RawMessage) *time.Time {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return &ts
			}
		}
		return nil
	}
	var unix float64
	if err := json.Unmarshal(raw, &unix); err == nil && unix > 0 {
		ts := time.Unix(int64(unix), 0)
		return &ts
	}
	return nil
}

// Send posts an operator message to one chat. With attachments the request
// is multipart; otherwise it is a plain form post. A rejected send returns
// a *SendError carrying the backend's reason.
func (c *Client) Send(ctx context.Context, userID, text string, files []Attachment) error {
	for _, f := range files {
		if len(f.Data) > MaxAttachmentSize {
			return &SendError{Message: fmt.Sprintf("file %s exceeds the 50MB limit", f.Name)}
		}
	}

	path := "/chat/" + url.PathEscape(userID)
	if len(files) == 0 {
		form := url.Values{"message": {text}}
		return c.postForm(ctx, path, form)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("message", text); err != nil {
		return fmt.Errorf("encoding message field: %w", err)
	}
	for _, f := range files {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
		if f.ContentType != "" {
			hdr.Set("Content-Type", f.ContentType)
		}
		part, err := w.CreatePart(hdr)
		if err != nil {
			return fmt.Errorf("encoding attachment %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return fmt.Errorf("encoding attachment %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	_, err = c.do(req)
	return err
}

// Users fetches one page of the dashboard roster.
func (c *Client) Users(ctx context.Context, page, pageSize int) (UsersPage, error) {
	q := url.Values{
		"page":      {strconv.Itoa(page)},
		"page_size": {strconv.Itoa(pageSize)},
	}
	body, err := c.get(ctx, "/dashboard-users", q)
	if err != nil {
		return UsersPage{}, err
	}
	var out UsersPage
	if err := json.Unmarshal(body, &out); err != nil {
		return UsersPage{}, fmt.Errorf("decoding users page: %w", err)
	}
	return out, nil
}

// Stats fetches the dashboard headline counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	body, err := c.get(ctx, "/dashboard-stats", nil)
	if err != nil {
		return Stats{}, err
	}
	var out Stats
	if err := json.Unmarshal(body, &out); err != nil {
		return Stats{}, fmt.Errorf("decoding stats: %w", err)
	}
	out.FetchedAt = time.Now()
	return out, nil
}

// Broadcast sends a message to every bot user.
func (c *Client) Broadcast(ctx context.Context, text string) error {
	return c.postForm(ctx, "/send_all", url.Values{"message": {text}})
}

// DirectSend sends a one-off message to a single user without opening a
// chat session.
func (c *Client) DirectSend(ctx context.Context, userID, text string) error {
	return c.postForm(ctx, "/send_one", url.Values{
		"user_id": {userID},
		"message": {text},
	})
}

// SetLabel assigns an operator label to a user.
func (c *Client) SetLabel(ctx context.Context, userID, label string) error {
	payload, err := json.Marshal(map[string]string{"label": label})
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/user/%s/label", url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req)
	return err
}

// InviteLink fetches the channel invite link.
func (c *Client) InviteLink(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/get_channel_invite_link", nil)
	if err != nil {
		return "", err
	}
	var out struct {
		InviteLink string `json:"invite_link"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decoding invite link: %w", err)
	}
	return out.InviteLink, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("backend request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode))
		var reject struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &reject) == nil && reject.Message != "" {
			return nil, &SendError{Message: reject.Message}
		}
		return nil, fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}
