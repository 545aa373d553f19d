package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/helpline-labs/support-desk/internal/observability"
)

func TestDispatcher_DeliversInOrderAndSurvivesFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	metrics := observability.NewMetrics()
	d := NewInMemoryDispatcher(zap.New(core), metrics)

	var seen []string
	d.Subscribe(EventTicketCreated, func(_ context.Context, e Event) error {
		seen = append(seen, "first:"+e.ID)
		return errors.New("mail server down")
	})
	d.Subscribe(EventTicketCreated, func(_ context.Context, e Event) error {
		seen = append(seen, "second:"+e.ID)
		return nil
	})
	d.Subscribe(EventTicketDeleted, func(_ context.Context, e Event) error {
		seen = append(seen, "deleted")
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{ID: "e1", Type: EventTicketCreated}))

	assert.Equal(t, []string{"first:e1", "second:e1"}, seen)
	assert.Equal(t, 1, logs.FilterMessage("event handler failed").Len())
	assert.Equal(t, int64(1), metrics.Snapshot().Events["ticket_created"])
}

func TestDispatcher_NoSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher(nil, nil)
	assert.NoError(t, d.Publish(context.Background(), Event{ID: "e1", Type: EventEmailIngested}))
}
