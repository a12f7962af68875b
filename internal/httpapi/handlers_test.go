package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waitline/queuecoord/internal/channel/webpush"
	cerrors "github.com/waitline/queuecoord/internal/errors"
)

type stubVerifier struct {
	principal *Principal
	err       error
}

func (s stubVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.principal, nil
}

type stubPushPutter struct {
	put webpush.Subscription
	err error
}

func (s *stubPushPutter) Put(ctx context.Context, sub webpush.Subscription) error {
	s.put = sub
	return s.err
}

func newTestServer(deps Dependencies) *Server {
	return NewServer(DefaultConfig(":0"), deps, zerolog.Nop())
}

func TestHealthz(t *testing.T) {
	s := newTestServer(Dependencies{Log: zerolog.Nop()})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAuthMiddleware_RejectsMissingBearerHeader(t *testing.T) {
	s := newTestServer(Dependencies{Log: zerolog.Nop(), Verifier: stubVerifier{}})
	req := httptest.NewRequest(http.MethodPost, "/queues", bytes.NewReader(nil))
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, string(cerrors.KindUnauthorized), body.Error.Kind)
}

func TestAuthMiddleware_RejectsInvalidToken(t *testing.T) {
	s := newTestServer(Dependencies{
		Log:      zerolog.Nop(),
		Verifier: stubVerifier{err: cerrors.New(cerrors.KindUnauthorized, "bad token")},
	})
	req := httptest.NewRequest(http.MethodPost, "/queues", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer garbage")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreatePushSubscription_RejectsMissingFields(t *testing.T) {
	putter := &stubPushPutter{}
	s := newTestServer(Dependencies{
		Log:        zerolog.Nop(),
		Verifier:   stubVerifier{principal: &Principal{UserID: "u1", Role: "customer"}},
		PushPutter: putter,
	})

	body, _ := json.Marshal(createPushSubscriptionRequest{Endpoint: "https://push.example.com/x"})
	req := httptest.NewRequest(http.MethodPost, "/push-subscriptions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer t")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, putter.put.ID)
}

func TestCreatePushSubscription_ServiceUnavailableWithoutPutter(t *testing.T) {
	s := newTestServer(Dependencies{
		Log:      zerolog.Nop(),
		Verifier: stubVerifier{principal: &Principal{UserID: "u1", Role: "customer"}},
	})

	body, _ := json.Marshal(createPushSubscriptionRequest{Endpoint: "e", P256dh: "p", Auth: "a"})
	req := httptest.NewRequest(http.MethodPost, "/push-subscriptions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer t")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestCreatePushSubscription_Succeeds(t *testing.T) {
	putter := &stubPushPutter{}
	s := newTestServer(Dependencies{
		Log:        zerolog.Nop(),
		Verifier:   stubVerifier{principal: &Principal{UserID: "u1", Role: "customer"}},
		PushPutter: putter,
	})

	body, _ := json.Marshal(createPushSubscriptionRequest{Endpoint: "https://push.example.com/x", P256dh: "p", Auth: "a"})
	req := httptest.NewRequest(http.MethodPost, "/push-subscriptions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer t")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "u1", putter.put.UserID)
	assert.Equal(t, "https://push.example.com/x", putter.put.Endpoint)
}

func TestWebsocketHandler_ServiceUnavailableWithoutHub(t *testing.T) {
	s := newTestServer(Dependencies{
		Log:      zerolog.Nop(),
		Verifier: stubVerifier{principal: &Principal{UserID: "u1", Role: "customer"}},
	})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer t")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestStripTags_RemovesHTML(t *testing.T) {
	assert.Equal(t, "alert(1)", stripTags(`<script>alert(1)</script>`))
	assert.Equal(t, "Hello, check out this website", stripTags(`<b>Hello, check out <a href="http://evil.example">this website</a></b>`))
	assert.Equal(t, "plain text", stripTags("plain text"))
}

func TestNotFoundHandler(t *testing.T) {
	s := newTestServer(Dependencies{Log: zerolog.Nop()})
	req := httptest.NewRequest(http.MethodGet, "/no-such-route", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
