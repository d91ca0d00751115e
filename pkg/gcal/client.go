package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/callscope/callscope/pkg/models"
)

const (
	defaultBaseURL = "https://www.googleapis.com/calendar/v3"

	// maxResultsPerPage is the API's documented page cap.
	maxResultsPerPage = 250
)

// Client talks to the Google Calendar API v3. The calendar id is the
// closer's email address.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient builds a client whose requests carry tokens from the given
// source. The source is typically a refresh-token flow owned by main.
func NewClient(ctx context.Context, source oauth2.TokenSource) *Client {
	return NewClientWithBaseURL(ctx, source, defaultBaseURL)
}

// NewClientWithBaseURL allows tests to point the client at a mock server.
func NewClientWithBaseURL(ctx context.Context, source oauth2.TokenSource, baseURL string) *Client {
	httpClient := oauth2.NewClient(ctx, source)
	httpClient.Timeout = 30 * time.Second
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		logger:     slog.With("component", "gcal"),
	}
}

// Name implements the calendar provider interface.
func (c *Client) Name() string { return "google" }

type eventsPage struct {
	Items         []googleEvent `json:"items"`
	NextPageToken string        `json:"nextPageToken"`
}

// ChangedEvents lists events modified since the given time, cancelled
// ones included, following pagination to the end.
func (c *Client) ChangedEvents(ctx context.Context, calendarID string, since time.Time) ([]models.CanonicalEvent, error) {
	var out []models.CanonicalEvent
	pageToken := ""

	for {
		q := url.Values{}
		q.Set("updatedMin", since.UTC().Format(time.RFC3339))
		q.Set("showDeleted", "true")
		q.Set("singleEvents", "true")
		q.Set("maxResults", strconv.Itoa(maxResultsPerPage))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		listURL := fmt.Sprintf("%s/calendars/%s/events?%s", c.baseURL, url.PathEscape(calendarID), q.Encode())

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("list events for %s: %w", calendarID, err)
		}

		var page eventsPage
		decodeErr := func() error {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("calendar API returned HTTP %d for %s: %s",
					resp.StatusCode, calendarID, readErrorBody(resp.Body))
			}
			if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
				return fmt.Errorf("decode events response: %w", err)
			}
			return nil
		}()
		if decodeErr != nil {
			return nil, decodeErr
		}

		for _, item := range page.Items {
			out = append(out, normalizeEvent(item))
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

// WatchRequest describes a push channel to open on one calendar.
type WatchRequest struct {
	ChannelID string
	// Token is echoed back on every notification; it carries the tenant id.
	Token   string
	Address string
	TTL     time.Duration
}

// WatchResult is the provider's half of an opened channel.
type WatchResult struct {
	ResourceID string
	Expiration time.Time
}

type watchBody struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Address string            `json:"address"`
	Token   string            `json:"token,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

type watchResponse struct {
	ResourceID string `json:"resourceId"`
	Expiration string `json:"expiration"`
}

// Watch opens a push channel for the calendar's event feed.
func (c *Client) Watch(ctx context.Context, calendarID string, req WatchRequest) (*WatchResult, error) {
	body := watchBody{
		ID:      req.ChannelID,
		Type:    "web_hook",
		Address: req.Address,
		Token:   req.Token,
	}
	if req.TTL > 0 {
		body.Params = map[string]string{"ttl": strconv.Itoa(int(req.TTL.Seconds()))}
	}

	watchURL := fmt.Sprintf("%s/calendars/%s/events/watch", c.baseURL, url.PathEscape(calendarID))
	resp, err := c.postJSON(ctx, watchURL, body)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", calendarID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("watch %s: calendar API returned HTTP %d: %s",
			calendarID, resp.StatusCode, readErrorBody(resp.Body))
	}

	var parsed watchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode watch response: %w", err)
	}

	result := &WatchResult{ResourceID: parsed.ResourceID}
	if ms, err := strconv.ParseInt(parsed.Expiration, 10, 64); err == nil {
		result.Expiration = time.UnixMilli(ms)
	}
	return result, nil
}

// StopChannel closes a push channel. A channel the provider no longer
// knows about counts as stopped.
func (c *Client) StopChannel(ctx context.Context, channelID, resourceID string) error {
	body := map[string]string{"id": channelID, "resourceId": resourceID}
	resp, err := c.postJSON(ctx, c.baseURL+"/channels/stop", body)
	if err != nil {
		return fmt.Errorf("stop channel %s: %w", channelID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("stop channel %s: calendar API returned HTTP %d: %s",
			channelID, resp.StatusCode, readErrorBody(resp.Body))
	}
}

func (c *Client) postJSON(ctx context.Context, rawURL string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

// readErrorBody returns a short prefix of an error response for logging.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(body))
}
