package notify

import (
	"context"
	"log/slog"
	"time"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/safety"
)

const defaultPublishTimeout = 5 * time.Second

// Notifier publishes trade and alert events. Publish failures are logged
// and never propagate to the trading path.
type Notifier struct {
	pub     Publisher
	timeout time.Duration
	logger  *slog.Logger
}

// NewNotifier wraps pub. A nil pub yields a Notifier that drops everything.
func NewNotifier(pub Publisher, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{pub: pub, timeout: defaultPublishTimeout, logger: logger.With("component", "notify")}
}

// Trade publishes rec.
func (n *Notifier) Trade(ctx context.Context, rec domain.TradeRecord) {
	if n == nil || n.pub == nil {
		return
	}
	ev, err := TradeEvent(rec)
	if err != nil {
		n.logger.Warn("encode trade event", "trade_id", rec.ID, "error", err)
		return
	}
	n.publish(ctx, ev)
}

// Alert publishes a safety alert. Its signature matches safety.Manager.OnAlert.
func (n *Notifier) Alert(a safety.Alert) {
	if n == nil || n.pub == nil {
		return
	}
	ev, err := AlertEvent(a)
	if err != nil {
		n.logger.Warn("encode alert event", "alert_id", a.ID, "error", err)
		return
	}
	n.publish(context.Background(), ev)
}

func (n *Notifier) publish(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	if err := n.pub.Publish(ctx, ev); err != nil {
		n.logger.Warn("publish event failed", "type", ev.Type, "account", ev.AccountID, "error", err)
	}
}

// Close closes the underlying publisher.
func (n *Notifier) Close() error {
	if n == nil || n.pub == nil {
		return nil
	}
	return n.pub.Close()
}
