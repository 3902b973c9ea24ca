package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

func TestLocalBrokerFansOut(t *testing.T) {
	b := NewLocalBroker(4)
	first, cancelFirst := b.Subscribe()
	defer cancelFirst()
	second, cancelSecond := b.Subscribe()
	defer cancelSecond()

	ev := domain.ChangeEvent{Type: domain.EventSale, BranchID: "branch1", ShiftID: "shf_1", At: time.Now()}
	require.NoError(t, b.Publish(context.Background(), ev))

	assert.Equal(t, ev, <-first)
	assert.Equal(t, ev, <-second)
}

func TestLocalBrokerDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewLocalBroker(1)
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(context.Background(), domain.ChangeEvent{Type: domain.EventSale}))
	}
	assert.Len(t, ch, 1)
}

func TestCancelClosesAndUnsubscribes(t *testing.T) {
	b := NewLocalBroker(1)
	ch, cancel := b.Subscribe()
	assert.Equal(t, 1, b.Subscribers())

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers())
	require.NoError(t, b.Publish(context.Background(), domain.ChangeEvent{Type: domain.EventVoid}))
}
