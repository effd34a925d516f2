// Package notify forwards newly persisted messages to a downstream sink.
//
// Delivery is at-most-once and fire-and-forget: a failed send is logged and
// never retried, and one message's failure does not block the rest. The
// dedup guarantees live in the store — only rows that were actually newly
// inserted ever reach this package, so a message is offered to the sink at
// most once across all capture cycles.
package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chatlogd/internal/store"
	logx "chatlogd/pkg/logx"
)

// Payload is the wire shape of one outbound notification.
type Payload struct {
	Host      string `json:"host"`
	ChatRoom  string `json:"chatRoom"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"` // "2006-01-02 15:04:05" local time
	Order     int    `json:"order"`
	Content   string `json:"content"`
}

// Sink delivers one payload over some transport. Best-effort.
type Sink interface {
	Send(ctx context.Context, p Payload) error
}

type Forwarder struct {
	sink    Sink
	host    string
	limiter *rate.Limiter
	log     logx.Logger

	wg sync.WaitGroup
}

func NewForwarder(sink Sink, host string, ratePerSec int, log logx.Logger) *Forwarder {
	if ratePerSec <= 0 {
		ratePerSec = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Forwarder{
		sink: sink,
		host: host,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log,
	}
}

// Forward pushes the batch asynchronously and returns immediately.
func (f *Forwarder) Forward(chatTitle string, msgs []store.SavedMessage) {
	if f == nil || f.sink == nil || len(msgs) == 0 {
		return
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.ForwardSync(context.Background(), chatTitle, msgs)
	}()
}

// ForwardSync delivers each message independently and blocks until done.
// Exposed for shutdown draining and tests.
func (f *Forwarder) ForwardSync(ctx context.Context, chatTitle string, msgs []store.SavedMessage) {
	if f == nil || f.sink == nil {
		return
	}
	for _, m := range msgs {
		if err := f.limiter.Wait(ctx); err != nil {
			return
		}
		p := Payload{
			Host:      f.host,
			ChatRoom:  chatTitle,
			Sender:    m.Sender,
			Timestamp: m.Timestamp.Format("2006-01-02 15:04:05"),
			Order:     m.Order,
			Content:   m.Content,
		}
		if err := f.sink.Send(ctx, p); err != nil {
			f.log.Warn("notification send failed",
				logx.String("chat", chatTitle),
				logx.String("ts", p.Timestamp),
				logx.Err(err))
			continue
		}
		f.log.Debug("notification sent",
			logx.String("chat", chatTitle), logx.String("ts", p.Timestamp))
	}
}

// Drain waits for in-flight async forwards, up to the given timeout.
func (f *Forwarder) Drain(timeout time.Duration) {
	if f == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
