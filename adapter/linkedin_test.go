package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reachloop/models"
	"reachloop/utils"
)

// bridgeRecorder captures the last request the fake bridge received.
type bridgeRecorder struct {
	mu      sync.Mutex
	path    string
	payload bridgePayload
}

func newBridgeServer(t *testing.T, status int, reply bridgeReply) (*httptest.Server, *bridgeRecorder) {
	t.Helper()

	rec := &bridgeRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&rec.payload)
		rec.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func linkedInRequest(t *testing.T, channel models.Channel) Request {
	t.Helper()

	req := testRequest(channel)
	sealed, err := utils.Encrypt("li_at=abc123")
	require.NoError(t, err)
	req.Account.LinkedInSession = sealed
	req.Account.ProxyURL = "http://proxy.local:8080"
	return req
}

func TestLinkedInAdapter_SendsMessageThroughBridge(t *testing.T) {
	srv, rec := newBridgeServer(t, http.StatusOK, bridgeReply{MessageID: "li-42"})
	a := NewLinkedInAdapter(srv.URL, discardLogger())

	res, err := a.Execute(context.Background(), linkedInRequest(t, models.ChannelLinkedInMessage))

	require.NoError(t, err)
	assert.Equal(t, "li-42", res.MessageID)
	assert.False(t, res.Completed)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "/v1/messages", rec.path)
	assert.Equal(t, "li_at=abc123", rec.payload.SessionCookie)
	assert.Equal(t, "https://linkedin.com/in/janedoe", rec.payload.ProfileURL)
	assert.Equal(t, "http://proxy.local:8080", rec.payload.ProxyURL)
	assert.Equal(t, "Hi Jane", rec.payload.Message)
}

func TestLinkedInAdapter_ConnectionRequestsUseOwnEndpoint(t *testing.T) {
	srv, rec := newBridgeServer(t, http.StatusCreated, bridgeReply{MessageID: "li-43"})
	a := NewLinkedInAdapter(srv.URL, discardLogger())

	res, err := a.Execute(context.Background(), linkedInRequest(t, models.ChannelLinkedInConnection))

	require.NoError(t, err)
	assert.Equal(t, "li-43", res.MessageID)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "/v1/connection-requests", rec.path)
}

func TestLinkedInAdapter_GeneratesIDWhenBridgeOmitsIt(t *testing.T) {
	srv, _ := newBridgeServer(t, http.StatusOK, bridgeReply{})
	a := NewLinkedInAdapter(srv.URL, discardLogger())

	res, err := a.Execute(context.Background(), linkedInRequest(t, models.ChannelLinkedInMessage))

	require.NoError(t, err)
	_, parseErr := uuid.Parse(res.MessageID)
	assert.NoError(t, parseErr)
}

func TestLinkedInAdapter_MapsBridgeStatuses(t *testing.T) {
	cases := []struct {
		status int
		want   models.ErrorCode
	}{
		{http.StatusUnauthorized, models.ErrCodeSessionExpired},
		{http.StatusForbidden, models.ErrCodeAccountNotLinked},
		{http.StatusNotFound, models.ErrCodeMissingRecipient},
		{http.StatusProxyAuthRequired, models.ErrCodeProxyError},
		{http.StatusBadGateway, models.ErrCodeProxyError},
		{http.StatusTooManyRequests, models.ErrCodeRateLimited},
		{http.StatusInternalServerError, models.ErrCodeOther},
	}
	for _, tc := range cases {
		srv, _ := newBridgeServer(t, tc.status, bridgeReply{Error: "nope"})
		a := NewLinkedInAdapter(srv.URL, discardLogger())

		_, err := a.Execute(context.Background(), linkedInRequest(t, models.ChannelLinkedInMessage))

		assert.Equal(t, tc.want, Classify(err), "status %d", tc.status)
	}
}

func TestLinkedInAdapter_BridgeUnreachable(t *testing.T) {
	// Port 1 on loopback, nothing listening there.
	a := NewLinkedInAdapter("http://127.0.0.1:1", discardLogger())

	_, err := a.Execute(context.Background(), linkedInRequest(t, models.ChannelLinkedInMessage))

	require.Error(t, err)
	assert.Contains(t,
		[]models.ErrorCode{models.ErrCodeOther, models.ErrCodeConnectionTimeout},
		Classify(err))
}
