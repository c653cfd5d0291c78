package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"textrelay/internal/app/message"
)

func msg(i int) message.Message {
	return message.Message{Sender: "alice", Content: fmt.Sprintf("m%d", i), Timestamp: int64(i)}
}

func recvWithin(t *testing.T, sub *Subscription) (message.Message, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return sub.Recv(ctx)
}

func TestSubscribe_OnlySeesLaterMessages(t *testing.T) {
	req := require.New(t)
	b := New(10)

	// Given a message published before anyone listens
	req.Equal(0, b.Publish(msg(1)))

	// When a subscriber joins and a second message is published
	sub := b.Subscribe()
	defer sub.Close()
	req.Equal(1, b.Publish(msg(2)))

	// Then only the second message is observed
	got, err := recvWithin(t, sub)
	req.NoError(err)
	req.Equal(msg(2), got)
	req.Equal(0, sub.Pending())
}

func TestPublish_FansOutInOrder(t *testing.T) {
	req := require.New(t)
	b := New(DefaultCapacity)

	const subscribers, messages = 5, 50
	subs := make([]*Subscription, subscribers)
	for i := range subs {
		subs[i] = b.Subscribe()
	}
	req.Equal(subscribers, b.SubscriberCount())

	var wg sync.WaitGroup
	results := make([][]message.Message, subscribers)
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub *Subscription) {
			defer wg.Done()
			for range messages {
				m, err := recvWithin(t, sub)
				if err != nil {
					return
				}
				results[i] = append(results[i], m)
			}
		}(i, sub)
	}

	for i := range messages {
		b.Publish(msg(i))
	}
	wg.Wait()

	for i := range subs {
		req.Len(results[i], messages)
		for j, m := range results[i] {
			req.Equal(msg(j), m)
		}
	}
}

func TestSubscription_LaggingDropsOldest(t *testing.T) {
	req := require.New(t)
	b := New(3)
	sub := b.Subscribe()
	defer sub.Close()

	// Given a subscriber that does not drain while 5 messages are published
	for i := 1; i <= 5; i++ {
		b.Publish(msg(i))
	}
	req.Equal(3, sub.Pending())

	// When it receives
	_, err := recvWithin(t, sub)

	// Then it is told it skipped the two oldest
	var lagged *LaggedError
	req.ErrorAs(err, &lagged)
	req.Equal(uint64(2), lagged.Skipped)

	// And it continues with the newest three in order
	for i := 3; i <= 5; i++ {
		got, err := recvWithin(t, sub)
		req.NoError(err)
		req.Equal(msg(i), got)
	}
}

func TestSubscription_SlowConsumerDoesNotAffectOthers(t *testing.T) {
	req := require.New(t)
	b := New(2)
	slow := b.Subscribe()
	fast := b.Subscribe()
	defer slow.Close()
	defer fast.Close()

	for i := 1; i <= 4; i++ {
		b.Publish(msg(i))
		got, err := recvWithin(t, fast)
		req.NoError(err)
		req.Equal(msg(i), got)
	}

	_, err := recvWithin(t, slow)
	var lagged *LaggedError
	req.ErrorAs(err, &lagged)
}

func TestRecv_BlocksUntilPublish(t *testing.T) {
	req := require.New(t)
	b := New(10)
	sub := b.Subscribe()
	defer sub.Close()

	done := make(chan message.Message, 1)
	go func() {
		m, err := recvWithin(t, sub)
		if err == nil {
			done <- m
		}
	}()

	time.Sleep(20 * time.Millisecond)
	b.Publish(msg(7))

	select {
	case m := <-done:
		req.Equal(msg(7), m)
	case <-time.After(time.Second):
		req.Fail("Recv did not return after publish")
	}
}

func TestRecv_ContextCancelled(t *testing.T) {
	req := require.New(t)
	b := New(10)
	sub := b.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sub.Recv(ctx)
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestSubscription_CloseReleases(t *testing.T) {
	req := require.New(t)
	b := New(10)
	sub := b.Subscribe()

	errCh := make(chan error, 1)
	go func() {
		_, err := recvWithin(t, sub)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	sub.Close()
	sub.Close()

	req.ErrorIs(<-errCh, ErrClosed)
	req.Equal(0, b.SubscriberCount())
	req.Equal(0, b.Publish(msg(1)))
}

func TestBus_CloseDrainsThenReportsClosed(t *testing.T) {
	req := require.New(t)
	b := New(10)
	sub := b.Subscribe()
	b.Publish(msg(1))

	b.Close()

	got, err := recvWithin(t, sub)
	req.NoError(err)
	req.Equal(msg(1), got)

	_, err = recvWithin(t, sub)
	req.True(errors.Is(err, ErrClosed))

	late := b.Subscribe()
	_, err = recvWithin(t, late)
	req.ErrorIs(err, ErrClosed)
	req.Equal(0, b.Publish(msg(2)))
}
