package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solexplorer/service/metrics"
	natspkg "github.com/brojonat/solexplorer/service/nats"
)

const keepaliveInterval = 10 * time.Second

// HeadFeed hands each streaming client its own feed of head events.
// *nats.JetStreamSubscriber implements it.
type HeadFeed interface {
	Subscribe(ctx context.Context) (<-chan natspkg.HeadEvent, error)
}

var _ HeadFeed = (*natspkg.JetStreamSubscriber)(nil)

// PollingFeed is a HeadFeed for single-replica deployments without NATS. Each
// subscriber polls the head source itself.
type PollingFeed struct {
	source   natspkg.HeadSource
	interval time.Duration
	logger   *slog.Logger
}

// NewPollingFeed creates a feed that checks the head every interval.
func NewPollingFeed(source natspkg.HeadSource, interval time.Duration, logger *slog.Logger) *PollingFeed {
	return &PollingFeed{source: source, interval: interval, logger: logger}
}

// Subscribe starts polling for this subscriber until ctx is done.
func (f *PollingFeed) Subscribe(ctx context.Context) (<-chan natspkg.HeadEvent, error) {
	events := make(chan natspkg.HeadEvent, 1)
	pub := &chanPublisher{ch: events}
	watcher := natspkg.NewHeadWatcher(f.source, pub, f.interval, f.logger)

	go func() {
		defer close(events)
		watcher.Run(ctx)
	}()
	return events, nil
}

// chanPublisher delivers watcher events to a single subscriber channel.
type chanPublisher struct {
	ch chan<- natspkg.HeadEvent
}

func (p *chanPublisher) PublishHead(ctx context.Context, event *natspkg.HeadEvent) error {
	event.PublishedAt = time.Now().UTC()
	select {
	case p.ch <- *event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *chanPublisher) Close() error { return nil }

// handleStreamHead streams head events to the client as Server-Sent Events.
// GET /api/stream/head
func handleStreamHead(feed HeadFeed, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		events, err := feed.Subscribe(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "failed to subscribe to head events", "error", err)
			writeError(w, "failed to subscribe", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		if m != nil {
			m.RecordSSEConnectionChange(1)
			defer m.RecordSSEConnectionChange(-1)
		}

		logger.DebugContext(ctx, "SSE client connected", "remote_addr", r.RemoteAddr)

		send := func(eventType, data string) {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
			flusher.Flush()
			if m != nil {
				m.RecordSSEEventSent(eventType)
			}
		}

		send("connected", fmt.Sprintf(`{"service":%q}`, serviceName))

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case event, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(ctx, "failed to marshal head event", "error", err)
					continue
				}
				send("head", string(data))

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected", "remote_addr", r.RemoteAddr)
				return
			}
		}
	})
}
