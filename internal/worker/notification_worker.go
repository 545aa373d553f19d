package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/helpline-labs/support-desk/internal/events"
	"github.com/helpline-labs/support-desk/internal/service"
)

const defaultQueueSize = 256

// NotificationWorker delivers acknowledgement mail off the request path.
type NotificationWorker struct {
	notifications *service.NotificationService
	logger        *zap.Logger
	queue         chan events.Event
	done          chan struct{}
	once          sync.Once
}

// NewNotificationWorker builds a worker with a bounded queue.
func NewNotificationWorker(notifications *service.NotificationService, logger *zap.Logger, queueSize int) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		notifications: notifications,
		logger:        logger,
		queue:         make(chan events.Event, queueSize),
		done:          make(chan struct{}),
	}
}

// StartNotificationWorker registers notification handlers, subscribes the
// worker and starts it. Cancel ctx and call Wait to drain.
func StartNotificationWorker(ctx context.Context, notifications *service.NotificationService, dispatcher events.Dispatcher, logger *zap.Logger) *NotificationWorker {
	if notifications == nil {
		return nil
	}
	notifications.RegisterHandlers()
	w := NewNotificationWorker(notifications, logger, defaultQueueSize)
	w.Subscribe(dispatcher)
	go w.Run(ctx)
	return w
}

// Subscribe enqueues ingested-email events from d.
func (w *NotificationWorker) Subscribe(d events.Dispatcher) {
	if d == nil {
		return
	}
	d.Subscribe(events.EventEmailIngested, w.enqueue)
}

// enqueue never blocks the publisher; a full queue drops the mail.
func (w *NotificationWorker) enqueue(_ context.Context, event events.Event) error {
	select {
	case w.queue <- event:
	default:
		w.logger.Warn("notification queue full, dropping acknowledgement",
			zap.String("event_id", event.ID),
			zap.String("ticket_id", event.TicketID))
	}
	return nil
}

// Run processes queued events until ctx is cancelled, then drains what is
// left.
func (w *NotificationWorker) Run(ctx context.Context) {
	defer w.once.Do(func() { close(w.done) })
	for {
		select {
		case event := <-w.queue:
			w.deliver(ctx, event)
		case <-ctx.Done():
			drainCtx := context.WithoutCancel(ctx)
			for {
				select {
				case event := <-w.queue:
					w.deliver(drainCtx, event)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (w *NotificationWorker) Wait() {
	if w == nil {
		return
	}
	<-w.done
}

func (w *NotificationWorker) deliver(ctx context.Context, event events.Event) {
	if err := w.notifications.Acknowledge(ctx, event); err != nil {
		w.logger.Warn("acknowledgement failed",
			zap.String("event_id", event.ID),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}
