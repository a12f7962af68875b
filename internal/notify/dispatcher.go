package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/waitline/queuecoord/internal/audit"
	"github.com/waitline/queuecoord/internal/channel/realtime"
	"github.com/waitline/queuecoord/internal/channel/webpush"
	"github.com/waitline/queuecoord/internal/resilience"
)

// RealtimeChannel is the subset of realtime.Hub the dispatcher needs.
type RealtimeChannel interface {
	Send(userID string, frame realtime.Frame) bool
	IsConnected(userID string) bool
}

// ExternalMsgChannel is the subset of externalmsg.Sender the dispatcher
// needs.
type ExternalMsgChannel interface {
	Send(ctx context.Context, phone, text string) (bool, error)
}

// PushChannel is the subset of webpush.Sender the dispatcher needs.
type PushChannel interface {
	Send(ctx context.Context, userID string, payload webpush.Payload) (bool, error)
}

// Recipient is the minimal addressing information the dispatcher needs
// per user, resolved by the caller from the User read-model.
type Recipient struct {
	UserID string
	Phone  string
}

// Dispatcher fans a rendered notification out across all three channels,
// per §4.G.
type Dispatcher struct {
	realtime    RealtimeChannel
	externalMsg ExternalMsgChannel
	push        PushChannel
	breakers    *resilience.Manager
	audit       *audit.LoggingWriter
	log         zerolog.Logger
}

// New builds a Dispatcher.
func New(realtime RealtimeChannel, externalMsg ExternalMsgChannel, push PushChannel, breakers *resilience.Manager, auditWriter *audit.LoggingWriter, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		realtime:    realtime,
		externalMsg: externalMsg,
		push:        push,
		breakers:    breakers,
		audit:       auditWriter,
		log:         log,
	}
}

// Notify renders kind with data and fans it out to recipient across the
// three adapters concurrently. Overall success is any-channel-succeeded,
// per §4.G; a NotificationLog is written regardless of outcome.
func (d *Dispatcher) Notify(ctx context.Context, queueID string, recipient Recipient, kind Kind, data TemplateData) bool {
	rendered := Render(kind, data)
	now := time.Now().UTC()

	results := make(map[string]audit.ChannelResult, 3)
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		res := d.sendRealtime(recipient.UserID, queueID, kind, rendered)
		mu.Lock()
		results["realtime-bus"] = res
		mu.Unlock()
	}()

	if recipient.Phone != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := d.sendExternalMsg(ctx, recipient.Phone, rendered)
			mu.Lock()
			results["external-msg"] = res
			mu.Unlock()
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		res := d.sendPush(ctx, recipient.UserID, rendered)
		mu.Lock()
		results["web-push"] = res
		mu.Unlock()
	}()

	wg.Wait()

	success := false
	for _, r := range results {
		if r.Sent {
			success = true
			break
		}
	}

	d.audit.WriteNotification(ctx, audit.NotificationLog{
		ID:        uuid.NewString(),
		QueueID:   queueID,
		UserID:    recipient.UserID,
		Timestamp: now,
		Type:      string(kind),
		Title:     rendered.Title,
		Body:      rendered.Body,
		Channels:  results,
	})

	return success
}

func (d *Dispatcher) sendRealtime(userID, queueID string, kind Kind, rendered Rendered) audit.ChannelResult {
	if d.realtime == nil {
		return audit.ChannelResult{Sent: false, Error: "realtime channel not configured"}
	}
	now := time.Now().UTC()
	frame := realtime.Frame{
		"type":      string(kind),
		"timestamp": now.Format(time.RFC3339Nano),
		"queueId":   queueID,
		"title":     rendered.Title,
		"body":      rendered.Body,
	}

	// A recipient with no open connection is the ordinary case, not an
	// adapter failure: Hub.Send buffers the frame for replay on
	// reconnect, so this bypasses the circuit breaker entirely. Routing
	// it through the breaker would trip "realtime-bus" to OPEN under
	// routine offline traffic and short-circuit future sends before
	// Hub.Send (and its buffer.Enqueue) ever ran.
	if !d.realtime.IsConnected(userID) {
		d.realtime.Send(userID, frame)
		return audit.ChannelResult{Sent: false, Error: "recipient offline, buffered for replay"}
	}

	err := d.breakers.ExecuteContext(context.Background(), "realtime-bus", func(ctx context.Context) error {
		if !d.realtime.Send(userID, frame) {
			return errSendFailed
		}
		return nil
	})
	if err != nil {
		return audit.ChannelResult{Sent: false, Error: errString(err)}
	}
	return audit.ChannelResult{Sent: true, SentAt: &now}
}

func (d *Dispatcher) sendExternalMsg(ctx context.Context, phone string, rendered Rendered) audit.ChannelResult {
	if d.externalMsg == nil {
		return audit.ChannelResult{Sent: false, Error: "external-msg channel not configured"}
	}
	now := time.Now().UTC()
	err := d.breakers.ExecuteContext(ctx, "external-msg", func(ctx context.Context) error {
		ok, err := d.externalMsg.Send(ctx, phone, rendered.Title+": "+rendered.Body)
		if err != nil {
			return err
		}
		if !ok {
			return errSendFailed
		}
		return nil
	})
	if err != nil {
		return audit.ChannelResult{Sent: false, Error: errString(err)}
	}
	return audit.ChannelResult{Sent: true, SentAt: &now}
}

func (d *Dispatcher) sendPush(ctx context.Context, userID string, rendered Rendered) audit.ChannelResult {
	if d.push == nil {
		return audit.ChannelResult{Sent: false, Error: "push channel not configured"}
	}
	now := time.Now().UTC()
	err := d.breakers.ExecuteContext(ctx, "web-push", func(ctx context.Context) error {
		ok, err := d.push.Send(ctx, userID, webpush.Payload{Title: rendered.Title, Body: rendered.Body})
		if err != nil {
			return err
		}
		if !ok {
			return errSendFailed
		}
		return nil
	})
	if err != nil {
		return audit.ChannelResult{Sent: false, Error: errString(err)}
	}
	return audit.ChannelResult{Sent: true, SentAt: &now}
}

var errSendFailed = sendFailedError{}

type sendFailedError struct{}

func (sendFailedError) Error() string { return "send failed" }

func errString(err error) string {
	if err == resilience.ErrCircuitOpen {
		return "circuit open"
	}
	return err.Error()
}
