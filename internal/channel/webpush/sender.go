// Package webpush sends browser push notifications to subscribed
// endpoints, per §4.E. No web-push client library appears anywhere in the
// retrieval pack (checked every example repo and other_examples/), so
// this sender is built directly on net/http POSTing the VAPID-signed
// payload — recorded in DESIGN.md as the one ambient concern with no
// ecosystem library to wire.
package webpush

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	cerrors "github.com/waitline/queuecoord/internal/errors"
)

// Subscription is a per-user push endpoint + keys, per §6 persistence
// layout's push_subscriptions collection.
type Subscription struct {
	ID       string `db:"id"`
	UserID   string `db:"user_id"`
	Endpoint string `db:"endpoint"`
	P256dh   string `db:"p256dh"`
	Auth     string `db:"auth"`
}

// SubscriptionStore persists push subscriptions.
type SubscriptionStore interface {
	Get(ctx context.Context, userID string) ([]Subscription, error)
	Delete(ctx context.Context, subscriptionID string) error
}

// Signer produces the VAPID Authorization header value and encrypts the
// payload for a subscription. Swappable so tests don't need real VAPID
// keys.
type Signer interface {
	Sign(sub Subscription, payload []byte) (authHeader string, encryptedBody []byte, err error)
}

// Sender is the web-push adapter of §4.E.
type Sender struct {
	Store  SubscriptionStore
	Signer Signer
	Client *http.Client
}

// NewSender builds a Sender with a 10s per-attempt timeout.
func NewSender(store SubscriptionStore, signer Signer) *Sender {
	return &Sender{Store: store, Signer: signer, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Payload is the JSON body encrypted and POSTed to each subscription.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send pushes payload to every subscription registered for userID. A
// 404/410 response removes that subscription (per §4.E); any other
// non-2xx is retryable and reported via the returned error.
func (s *Sender) Send(ctx context.Context, userID string, payload Payload) (bool, error) {
	subs, err := s.Store.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(subs) == 0 {
		return false, cerrors.New(cerrors.KindPushFailed, "no push subscription for user")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}

	delivered := false
	var lastErr error
	for _, sub := range subs {
		ok, err := s.sendOne(ctx, sub, body)
		if ok {
			delivered = true
			continue
		}
		lastErr = err
	}
	if delivered {
		return true, nil
	}
	return false, lastErr
}

func (s *Sender) sendOne(ctx context.Context, sub Subscription, body []byte) (bool, error) {
	authHeader, encrypted, err := s.Signer.Sign(sub, body)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(encrypted))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Encoding", "aes128gcm")
	req.Header.Set("Authorization", authHeader)
	req.Header.Set("TTL", "2419200")

	resp, err := s.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		_ = s.Store.Delete(ctx, sub.ID)
		return false, cerrors.New(cerrors.KindPushFailed, "subscription expired").WithDetails(map[string]interface{}{"status": resp.StatusCode})
	default:
		return false, cerrors.Wrap(cerrors.KindPushFailed, "push provider error", nil).WithDetails(map[string]interface{}{"status": resp.StatusCode})
	}
}
