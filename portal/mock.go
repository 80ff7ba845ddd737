package portal

import (
	"context"
	"encoding/json"
	"github.com/eclipse/paho.golang/paho"
	"github.com/lefinal/gacha-arena/event"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// Stub is a mock.Mock-backed Portal for tests of services.
type Stub struct {
	mock.Mock
	// Log is returned by Logger. A nop logger is used if unset.
	Log *zap.Logger
}

// Subscribe returns the *Newsletter[any] passed to mock.Call.Return.
func (s *Stub) Subscribe(ctx context.Context, topic Topic) *Newsletter[any] {
	newsletter, _ := s.Called(ctx, topic).Get(0).(*Newsletter[any])
	return newsletter
}

// Publish records the call.
func (s *Stub) Publish(ctx context.Context, topic Topic, payload interface{}) {
	s.Called(ctx, topic, payload)
}

func (s *Stub) Logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// NewIdleNewsletter returns a Newsletter that never receives anything. Its
// Receive channel is closed when unsubscribed or the context is done.
func NewIdleNewsletter(ctx context.Context) *Newsletter[any] {
	return NewFeedNewsletter(ctx, nil)
}

// NewFeedNewsletter returns a Newsletter that receives the events from feed as
// if they came from the broker: each event's Payload is marshalled into its
// paho.Publish. Receive is closed when unsubscribed, the context is done or
// feed is closed. It panics for payloads that cannot be marshalled.
func NewFeedNewsletter(ctx context.Context, feed <-chan event.Event[any]) *Newsletter[any] {
	lifetime, unsubscribe := context.WithCancel(ctx)
	receive := make(chan event.Event[any])
	go func() {
		defer close(receive)
		for {
			var e event.Event[any]
			var more bool
			select {
			case <-lifetime.Done():
				return
			case e, more = <-feed:
			}
			if !more {
				return
			}
			raw, err := json.Marshal(e.Payload)
			if err != nil {
				panic("marshal fed payload: " + err.Error())
			}
			publish := paho.Publish{}
			if e.Publish != nil {
				publish = *e.Publish
			}
			publish.Payload = raw
			select {
			case <-lifetime.Done():
				return
			case receive <- event.Event[any]{Publish: &publish}:
			}
		}
	}()
	return &Newsletter[any]{
		unregisterFn: unsubscribe,
		Receive:      receive,
	}
}
