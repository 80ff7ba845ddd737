// Package logpublishsvc publishes log entries via MQTT so that operators can
// follow the arena remotely.
package logpublishsvc

import (
	"context"
	"github.com/jonboulle/clockwork"
	"github.com/lefinal/gacha-arena/event"
	"github.com/lefinal/gacha-arena/logging"
	"github.com/lefinal/gacha-arena/portal"
	"github.com/lefinal/gacha-arena/service"
	"go.uber.org/zap"
	"time"
)

const topicLogPublish portal.Topic = portal.BaseTopic + "/log/next"

// publishDebounceDelay is how long entries are collected before publishing.
const publishDebounceDelay = 100 * time.Millisecond

type logPublishService struct {
	logger *zap.Logger
	// portal must not publish its own log entries.
	portal  portal.Portal
	clock   clockwork.Clock
	entries <-chan logging.LogEntry
}

// New creates a service.Service that publishes the entries read from entries.
// Pass a portal created with portal.Base.NewUnpublishedPortal.
func New(logger *zap.Logger, portal portal.Portal, entries <-chan logging.LogEntry) service.Service {
	return &logPublishService{
		logger:  logging.NoPublish(logger),
		portal:  portal,
		clock:   clockwork.NewRealClock(),
		entries: entries,
	}
}

// Run publishes entries until ctx is done or the entry channel is closed.
func (s *logPublishService) Run(ctx context.Context) error {
	for {
		var first logging.LogEntry
		var open bool
		select {
		case <-ctx.Done():
			return nil
		case first, open = <-s.entries:
		}
		if !open {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(publishDebounceDelay):
		}
		batch, open := s.drain(first)
		for _, entry := range batch {
			s.portal.Publish(ctx, topicLogPublish, event.NextLogEntryEvent{
				Time:       entry.Time,
				Message:    entry.Message,
				Level:      entry.Level.String(),
				LoggerName: entry.LoggerName,
				Fields:     entry.Fields,
			})
		}
		s.logger.Debug("published log entries", zap.Int("count", len(batch)))
		if !open {
			return nil
		}
	}
}

// drain collects the given entry and all that are currently buffered. It
// reports whether the entry channel is still open.
func (s *logPublishService) drain(first logging.LogEntry) ([]logging.LogEntry, bool) {
	batch := []logging.LogEntry{first}
	for {
		select {
		case entry, open := <-s.entries:
			if !open {
				return batch, false
			}
			batch = append(batch, entry)
		default:
			return batch, true
		}
	}
}
