package telegram

import (
	"context"
	"errors"
	"net"
	"time"

	"reorder-service/internal/model"
	"reorder-service/internal/tracker"

	"go.uber.org/zap"
)

// reconnectBackoff is the fixed delay before re-polling after a transport
// failure that is not a plain long-poll timeout.
const reconnectBackoff = 5 * time.Second

// drainTimeout bounds how long an in-flight callback may take to finish
// during shutdown.
const drainTimeout = 10 * time.Second

// CallbackHandler applies one inbound button-press event and returns the
// acknowledgment text shown to the user.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, ev model.CallbackEvent) string
}

// Listener is the long-lived inbound-event loop. It long-polls the Telegram
// Bot API, translates callback queries into CallbackEvents, hands them to the
// handler and acknowledges every event, including malformed or unknown ones.
type Listener struct {
	client      *Client
	handler     CallbackHandler
	logger      *zap.Logger
	pollTimeout int
	offset      int64
}

// NewListener creates the callback listener.
func NewListener(client *Client, handler CallbackHandler, pollTimeoutSec int, logger *zap.Logger) *Listener {
	return &Listener{
		client:      client,
		handler:     handler,
		logger:      logger,
		pollTimeout: pollTimeoutSec,
	}
}

// Run polls until the context is cancelled. Long-poll timeouts are not
// errors; the loop reconnects immediately. Other transport failures are
// reported and retried after a fixed backoff, never propagated. On
// cancellation any in-flight callback finishes within a bounded drain window
// before Run returns.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("📨 Callback listener started", zap.Int("poll_timeout_sec", l.pollTimeout))

	for {
		if ctx.Err() != nil {
			l.logger.Info("Callback listener stopped")
			return nil
		}

		updates, err := l.client.GetUpdates(ctx, l.offset, l.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("Callback listener stopped")
				return nil
			}
			if isTimeout(err) {
				continue
			}
			l.logger.Error("Polling failed, backing off", zap.Error(err))
			select {
			case <-ctx.Done():
				l.logger.Info("Callback listener stopped")
				return nil
			case <-time.After(reconnectBackoff):
			}
			continue
		}

		for _, update := range updates {
			l.offset = update.UpdateID + 1
			if update.CallbackQuery == nil {
				continue
			}
			l.processCallback(*update.CallbackQuery)
		}
	}
}

// processCallback handles one button press on a detached, bounded context so
// an in-flight event survives shutdown of the poll loop.
func (l *Listener) processCallback(q CallbackQuery) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	action, orderID := tracker.ParseCallbackData(q.Data)
	if action == model.ActionNoop {
		l.logger.Warn("Malformed callback payload, acknowledging as no-op",
			zap.String("event_id", q.ID),
			zap.String("data", q.Data),
		)
	}

	ack := l.handler.HandleCallback(ctx, model.CallbackEvent{
		EventID: q.ID,
		Action:  action,
		OrderID: orderID,
	})

	if err := l.client.AnswerCallback(ctx, q.ID, ack); err != nil {
		l.logger.Warn("Failed to acknowledge callback",
			zap.String("event_id", q.ID),
			zap.Error(err),
		)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
