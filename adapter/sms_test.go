package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reachloop/models"
)

type gatewayRecorder struct {
	mu      sync.Mutex
	auth    string
	payload smsPayload
}

func newGatewayServer(t *testing.T, status int, reply smsReply) (*httptest.Server, *gatewayRecorder) {
	t.Helper()

	rec := &gatewayRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&rec.payload)
		rec.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func smsRequest(channel models.Channel) Request {
	req := testRequest(channel)
	req.Account.SMSFromNumber = "+15550001111"
	req.Account.SMSAPIKey = "gw-key-123"
	return req
}

func TestSMSAdapter_DeliversThroughGateway(t *testing.T) {
	srv, rec := newGatewayServer(t, http.StatusAccepted, smsReply{MessageID: "sms-7"})
	a := NewSMSAdapter(srv.URL, discardLogger())

	res, err := a.Execute(context.Background(), smsRequest(models.ChannelSMS))

	require.NoError(t, err)
	assert.Equal(t, "sms-7", res.MessageID)
	assert.False(t, res.Completed)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "Bearer gw-key-123", rec.auth)
	assert.Equal(t, "+15550001111", rec.payload.From)
	assert.Equal(t, "+15551234567", rec.payload.To)
	assert.Equal(t, "Hi Jane", rec.payload.Body)
}

func TestSMSAdapter_MapsGatewayStatuses(t *testing.T) {
	cases := []struct {
		status int
		want   models.ErrorCode
	}{
		{http.StatusUnauthorized, models.ErrCodeAccountNotLinked},
		{http.StatusForbidden, models.ErrCodeAccountNotLinked},
		{http.StatusBadRequest, models.ErrCodeMissingRecipient},
		{http.StatusUnprocessableEntity, models.ErrCodeMissingRecipient},
		{http.StatusTooManyRequests, models.ErrCodeRateLimited},
		{http.StatusInternalServerError, models.ErrCodeOther},
	}
	for _, tc := range cases {
		srv, _ := newGatewayServer(t, tc.status, smsReply{Error: "nope"})
		a := NewSMSAdapter(srv.URL, discardLogger())

		_, err := a.Execute(context.Background(), smsRequest(models.ChannelSMS))

		assert.Equal(t, tc.want, Classify(err), "status %d", tc.status)
	}
}

func TestSMSAdapter_GeneratesIDWhenGatewayOmitsIt(t *testing.T) {
	srv, _ := newGatewayServer(t, http.StatusOK, smsReply{})
	a := NewSMSAdapter(srv.URL, discardLogger())

	res, err := a.Execute(context.Background(), smsRequest(models.ChannelSMS))

	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)
}
