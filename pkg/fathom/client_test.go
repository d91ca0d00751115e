package fathom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClientWithBaseURL("key-tyler", server.URL)
}

func TestListMeetingsPaginates(t *testing.T) {
	var requests []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-tyler", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "/meetings", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("include_transcript"))
		assert.Equal(t, "2026-02-20T18:00:00Z", r.URL.Query().Get("created_after"))
		requests = append(requests, r.URL.Query().Get("cursor"))

		if r.URL.Query().Get("cursor") == "" {
			fmt.Fprint(w, `{"items": [{"id": 1, "recorded_by": {"email": "tyler@acme.io"}, "transcript": []}], "next_cursor": "page2"}`)
			return
		}
		fmt.Fprint(w, `{"items": [{"id": 2, "recorded_by": {"email": "tyler@acme.io"}, "transcript": []}], "next_cursor": ""}`)
	})

	since := time.Date(2026, 2, 20, 18, 0, 0, 0, time.UTC)
	meetings, err := client.ListMeetings(context.Background(), since)
	require.NoError(t, err)

	require.Len(t, meetings, 2)
	assert.Equal(t, "1", meetings[0].MeetingID)
	assert.Equal(t, "2", meetings[1].MeetingID)
	assert.Equal(t, []string{"", "page2"}, requests)
}

func TestListMeetingsSkipsMalformedItems(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items": [{"title": "no id here"}, {"id": 7, "recorded_by": {"email": "tyler@acme.io"}, "transcript": []}], "next_cursor": ""}`)
	})

	meetings, err := client.ListMeetings(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)

	require.Len(t, meetings, 1)
	assert.Equal(t, "7", meetings[0].MeetingID)
}

func TestListMeetingsAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid api key"}`, http.StatusUnauthorized)
	})

	_, err := client.ListMeetings(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestGetMeeting(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/meetings/918273", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("include_transcript"))
		fmt.Fprint(w, sampleMeetingJSON)
	})

	ct, err := client.GetMeeting(context.Background(), "918273")
	require.NoError(t, err)
	assert.Equal(t, "918273", ct.MeetingID)
	assert.Equal(t, "amy@example.com", ct.ProspectEmail)
	assert.False(t, ct.Partial)
}

func TestRegisterWebhook(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/webhooks", r.URL.Path)
		assert.Equal(t, "key-tyler", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, jsonDecode(r, &body))
		assert.Equal(t, "https://engine.example.com/webhooks/transcript/fathom", body["destination_url"])
		assert.Equal(t, true, body["include_transcript"])

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 4411, "secret": "whsec_abc"}`)
	})

	reg, err := client.RegisterWebhook(context.Background(), "https://engine.example.com/webhooks/transcript/fathom")
	require.NoError(t, err)
	assert.Equal(t, "4411", reg.ID)
	assert.Equal(t, "whsec_abc", reg.Secret)
}

func TestRegisterWebhookError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "plan does not include webhooks", http.StatusForbidden)
	})

	_, err := client.RegisterWebhook(context.Background(), "https://engine.example.com/hook")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 403")
}

func TestDeleteWebhook(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			assert.Equal(t, "/webhooks/4411", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		})
		assert.NoError(t, client.DeleteWebhook(context.Background(), "4411"))
	})

	t.Run("already gone", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		assert.NoError(t, client.DeleteWebhook(context.Background(), "4411"))
	})

	t.Run("server error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		err := client.DeleteWebhook(context.Background(), "4411")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP 500")
	})
}

func jsonDecode(r *http.Request, out any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}
