// Package notify fans operator messages out to delivery channels. Every
// message is logged; senders run in the background so a slow or failing
// channel never delays trading.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSendTimeout = 10 * time.Second

// Sender is a single delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier implements domain.Notifier.
type Notifier struct {
	title   string
	senders []Sender
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewNotifier(title string, senders []Sender, logger *zap.Logger) *Notifier {
	return &Notifier{
		title:   title,
		senders: senders,
		logger:  logger.With(zap.String("component", "notifier")),
		timeout: defaultSendTimeout,
	}
}

// SetTimeout bounds each background delivery.
func (n *Notifier) SetTimeout(d time.Duration) {
	if d > 0 {
		n.timeout = d
	}
}

func (n *Notifier) Notify(ctx context.Context, message string) {
	n.logger.Info(message, zap.String("event", "notify"))

	for _, s := range n.senders {
		n.wg.Add(1)
		go func(s Sender) {
			defer n.wg.Done()
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
			defer cancel()
			if err := s.Send(sendCtx, n.title, message); err != nil {
				n.logger.Warn("Notification delivery failed", zap.String("sender", s.Name()), zap.Error(err))
				return
			}
			n.logger.Debug("Notification sent", zap.String("sender", s.Name()))
		}(s)
	}
}

// Wait blocks until in-flight deliveries finish. Call it before exit.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
