package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ai-mistake-tracker/pkg/middleware"
	"ai-mistake-tracker/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDeliverable(t *testing.T) {
	user := models.Principal{UserID: "u1", Role: models.RoleUser}
	other := models.Principal{UserID: "u2", Role: models.RoleUser}
	mod := models.Principal{UserID: "m1", Role: models.RoleModerator}

	created := models.Event{Type: models.EventReportCreated}
	moderated := models.Event{Type: models.EventReportModerated, ReporterID: "u1"}
	anonModerated := models.Event{Type: models.EventReportModerated}
	deleted := models.Event{Type: models.EventUserDeleted, ActorID: "u1"}

	assert.True(t, deliverable(other, created))
	assert.True(t, deliverable(other, models.Event{Type: models.EventVoteChanged}))

	assert.True(t, deliverable(user, moderated))
	assert.True(t, deliverable(mod, moderated))
	assert.False(t, deliverable(other, moderated))
	assert.False(t, deliverable(models.Principal{}, anonModerated))
	assert.True(t, deliverable(mod, anonModerated))

	assert.False(t, deliverable(user, deleted))
}

func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if data != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestSubscribeStreamsFilteredEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zap.NewNop())
	go hub.Run(ctx)

	auth := middleware.NewAuthenticator("test-secret")
	srv := &server{hub: hub, auth: auth, log: zap.NewNop()}
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/subscribe")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := auth.IssueToken(models.Principal{UserID: "u2", Role: models.RoleUser}, time.Now())
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/notifications/subscribe?token="+token, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body := bufio.NewReader(resp.Body)
	_, data := readEvent(t, body)
	assert.Contains(t, data, "connected")
	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(ctx, models.Event{Type: models.EventReportModerated, ReportID: "r1", ReporterID: "u1"}))
	require.NoError(t, hub.Publish(ctx, models.Event{Type: models.EventVoteChanged, ReportID: "r2", VoteScore: 3}))

	name, data := readEvent(t, body)
	assert.Equal(t, string(models.EventVoteChanged), name, "moderation of someone else's report is skipped")
	var e models.Event
	require.NoError(t, json.Unmarshal([]byte(data), &e))
	assert.Equal(t, "r2", e.ReportID)
	assert.Equal(t, 3, e.VoteScore)
}

func TestHubShutdownReleasesClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return middleware.SSEClients() == 0 }, time.Second, 5*time.Millisecond,
		"earlier streams have disconnected")
	clients := []*client{
		{principal: models.Principal{UserID: "u1"}, send: make(chan models.Event, clientBuffer)},
		{principal: models.Principal{UserID: "u2"}, send: make(chan models.Event, clientBuffer)},
	}
	for _, c := range clients {
		hub.register <- c
	}
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return middleware.SSEClients() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	assert.Equal(t, 0, hub.Clients())
	assert.Equal(t, 0.0, middleware.SSEClients(), "gauge returns to zero")
	for _, c := range clients {
		_, open := <-c.send
		assert.False(t, open)
	}
}
