package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"certpipe/internal/config"
	"certpipe/internal/constants"
	"certpipe/internal/logger"
	"certpipe/pkg/metrics"
	"certpipe/pkg/retry"
)

const handshakeTimeout = 30 * time.Second

// EventHandler receives every group-message event the stream decodes.
// It must not block for long; slow consumers should queue internally.
type EventHandler func(ctx context.Context, event Event)

// Stream maintains the push connection to the gateway. It reconnects
// with exponential backoff until the context is cancelled and forwards
// only group-message events to the handler.
type Stream struct {
	url          string
	reconnectMin time.Duration
	reconnectMax time.Duration
	dialer       *websocket.Dialer
	handler      EventHandler
	log          logger.Logger
}

func NewStream(cfg config.GatewayConfig, handler EventHandler, log logger.Logger) *Stream {
	reconnectMin := cfg.ReconnectMin
	if reconnectMin <= 0 {
		reconnectMin = 1 * time.Second
	}
	reconnectMax := cfg.ReconnectMax
	if reconnectMax <= 0 {
		reconnectMax = 60 * time.Second
	}
	return &Stream{
		url:          cfg.WebSocketURL,
		reconnectMin: reconnectMin,
		reconnectMax: reconnectMax,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		handler: handler,
		log:     log,
	}
}

// Run blocks until ctx is cancelled. Each connection attempt resets the
// backoff once a message has been read successfully.
func (s *Stream) Run(ctx context.Context) error {
	b := retry.Perpetual(ctx, s.reconnectMin, s.reconnectMax)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			metrics.GatewayReconnectsTotal.Inc()
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				return ctx.Err()
			}
			s.log.Warnw("Gateway connection failed, backing off",
				"url", s.url,
				"error", err,
				"retry_in", wait,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		s.log.Infow("Gateway stream connected", "url", s.url)
		s.readLoop(ctx, conn, b)
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		metrics.GatewayReconnectsTotal.Inc()
		s.log.Warnw("Gateway stream disconnected, reconnecting", "url", s.url)
	}
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn, b backoff.BackOff) {
	// Close the socket when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warnw("Gateway read failed", "error", err)
			}
			return
		}
		b.Reset()
		s.dispatch(ctx, payload)
	}
}

func (s *Stream) dispatch(ctx context.Context, payload []byte) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		metrics.GatewayEventsTotal.WithLabelValues("decode_error").Inc()
		s.log.Warnw("Failed to decode gateway event", "error", err)
		return
	}

	if event.Event != constants.EventCodeGroupMessage {
		metrics.GatewayEventsTotal.WithLabelValues("skipped").Inc()
		return
	}

	metrics.GatewayEventsTotal.WithLabelValues("accepted").Inc()
	s.handler(ctx, event)
}
