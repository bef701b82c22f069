package presence

import (
	"context"
	"time"
)

// MessageType discriminates watch messages.
type MessageType string

const (
	MessageCount     MessageType = "count"
	MessageHealth    MessageType = "health"
	MessageKeepAlive MessageType = "keepalive"
)

// Message is one frame on the push channel.
type Message struct {
	Type    MessageType `json:"type"`
	Count   int64       `json:"count"`
	Healthy bool        `json:"healthy"`
	At      time.Time   `json:"at"`
}

// Watch streams subject's count to emit until ctx is done or emit fails.
//
// It sends the current count and health immediately, then polls every
// PollInterval and emits only what changed since the previous tick. A
// keep-alive frame goes out every KeepAlive. Both tickers are stopped before
// Watch returns.
func (s *Service) Watch(ctx context.Context, subject string, emit func(Message) error) error {
	count := s.Count(ctx, subject)
	healthy := s.Healthy()
	if err := emit(Message{Type: MessageCount, Count: count, Healthy: healthy, At: time.Now().UTC()}); err != nil {
		return err
	}
	if err := emit(Message{Type: MessageHealth, Count: count, Healthy: healthy, At: time.Now().UTC()}); err != nil {
		return err
	}

	poll := time.NewTicker(s.opts.PollInterval)
	defer poll.Stop()
	keep := time.NewTicker(s.opts.KeepAlive)
	defer keep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-keep.C:
			if err := emit(Message{Type: MessageKeepAlive, Count: count, Healthy: healthy, At: time.Now().UTC()}); err != nil {
				return err
			}

		case <-poll.C:
			n := s.Count(ctx, subject)
			h := s.Healthy()
			if n != count {
				count = n
				if err := emit(Message{Type: MessageCount, Count: n, Healthy: h, At: time.Now().UTC()}); err != nil {
					return err
				}
			}
			if h != healthy {
				healthy = h
				if err := emit(Message{Type: MessageHealth, Count: n, Healthy: h, At: time.Now().UTC()}); err != nil {
					return err
				}
			}
		}
	}
}
