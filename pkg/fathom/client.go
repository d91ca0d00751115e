package fathom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/callscope/callscope/pkg/models"
)

const defaultBaseURL = "https://api.fathom.ai/external/v1"

// Client talks to the Fathom external API with one closer's credential.
// Construct one per closer; the API key scopes every request.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// NewClient creates a Fathom API client for the given API key.
func NewClient(apiKey string) *Client {
	return NewClientWithBaseURL(apiKey, defaultBaseURL)
}

// NewClientWithBaseURL allows overriding the API endpoint, for tests.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     slog.With("component", "fathom"),
	}
}

type listResponse struct {
	Items      []json.RawMessage `json:"items"`
	NextCursor string            `json:"next_cursor"`
}

// ListMeetings returns meetings created after the given instant, newest
// pages first per Fathom's ordering, transcripts included. Items that
// fail to normalize are logged and skipped so one malformed meeting does
// not hide the rest.
func (c *Client) ListMeetings(ctx context.Context, since time.Time) ([]models.CanonicalTranscript, error) {
	var meetings []models.CanonicalTranscript
	cursor := ""
	for {
		params := url.Values{}
		params.Set("created_after", since.UTC().Format(time.RFC3339))
		params.Set("include_transcript", "true")
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var page listResponse
		if err := c.getJSON(ctx, "/meetings?"+params.Encode(), &page); err != nil {
			return nil, fmt.Errorf("listing fathom meetings: %w", err)
		}

		for _, item := range page.Items {
			ct, err := normalizeMeeting(item)
			if err != nil {
				c.logger.Warn("Skipping malformed fathom meeting", "error", err)
				continue
			}
			meetings = append(meetings, *ct)
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return meetings, nil
}

// GetMeeting fetches a single meeting with its transcript, for polling a
// meeting announced by a metadata-only webhook.
func (c *Client) GetMeeting(ctx context.Context, meetingID string) (*models.CanonicalTranscript, error) {
	var raw json.RawMessage
	path := "/meetings/" + url.PathEscape(meetingID) + "?include_transcript=true"
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("fetching fathom meeting %s: %w", meetingID, err)
	}
	return normalizeMeeting(raw)
}

// WebhookRegistration is what Fathom returns when a webhook is created.
// The secret signs future deliveries.
type WebhookRegistration struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

// RegisterWebhook subscribes the given destination URL to meeting-content
// deliveries for this API key's account.
func (c *Client) RegisterWebhook(ctx context.Context, destinationURL string) (*WebhookRegistration, error) {
	body := map[string]any{
		"destination_url":    destinationURL,
		"include_transcript": true,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding webhook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/webhooks", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registering fathom webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("fathom webhook registration returned HTTP %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var created struct {
		ID     flexID `json:"id"`
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decoding webhook response: %w", err)
	}
	return &WebhookRegistration{ID: string(created.ID), Secret: created.Secret}, nil
}

// DeleteWebhook removes a registered webhook. A webhook Fathom no longer
// knows about counts as deleted.
func (c *Client) DeleteWebhook(ctx context.Context, webhookID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/webhooks/"+url.PathEscape(webhookID), nil)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deleting fathom webhook: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("fathom webhook delete returned HTTP %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling fathom API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fathom API returned HTTP %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding fathom response: %w", err)
	}
	return nil
}

func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return "<unreadable>"
	}
	return strings.TrimSpace(string(body))
}
