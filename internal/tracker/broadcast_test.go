package tracker

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sub *Subscription) []Update {
	var out []Update
	for {
		select {
		case u, ok := <-sub.Updates():
			if !ok {
				return out
			}
			out = append(out, u)
		default:
			return out
		}
	}
}

func TestBroadcast_OrderWithinSession(t *testing.T) {
	tr := New()
	sub := tr.Subscribe()
	defer tr.Unsubscribe(sub)

	_, err := tr.StartSession("s1", "q", []string{"A"})
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		tr.UpdateParticipant("s1", "A", StateProcessing, WithProgress(float64(i*10)))
	}
	require.NoError(t, tr.Complete("s1", "done"))

	updates := drain(sub)
	require.Len(t, updates, 7)
	assert.Equal(t, KindSessionStarted, updates[0].Kind)
	for i := 1; i <= 5; i++ {
		assert.Equal(t, KindParticipantUpdated, updates[i].Kind)
		assert.Equal(t, float64(i*10), updates[i].State.Progress)
	}
	assert.Equal(t, KindSessionCompleted, updates[6].Kind)
}

func TestBroadcast_SessionFilter(t *testing.T) {
	tr := New()
	only := tr.SubscribeSession("s2")
	all := tr.Subscribe()
	defer tr.Unsubscribe(only)
	defer tr.Unsubscribe(all)

	_, _ = tr.StartSession("s1", "q", nil)
	_, _ = tr.StartSession("s2", "q", nil)

	got := drain(only)
	require.Len(t, got, 1)
	assert.Equal(t, "s2", got[0].SessionID)
	assert.Equal(t, "s2", only.SessionID())
	assert.Len(t, drain(all), 2)
}

func TestBroadcast_DropsUnresponsiveSubscriber(t *testing.T) {
	timeout := 20 * time.Millisecond
	tr := New(WithBroadcastTimeout(timeout), WithSubscriberBuffer(1))

	stuck := tr.Subscribe() // never read
	live := tr.Subscribe()

	received := make(chan Update, 100)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for u := range live.Updates() {
			received <- u
		}
	}()

	// The first update fills stuck's buffer; the second times out on it.
	_, err := tr.StartSession("s1", "q", []string{"A"})
	require.NoError(t, err)

	start := time.Now()
	tr.UpdateParticipant("s1", "A", StateAnalyzing)
	assert.Less(t, time.Since(start), timeout+200*time.Millisecond)

	_, open := <-stuck.Updates() // buffered update
	assert.True(t, open)
	_, open = <-stuck.Updates()
	assert.False(t, open, "dropped subscriber's channel is closed")
	assert.Equal(t, 1, tr.SubscriberCount())

	// Later broadcasts do not wait on the dropped subscriber.
	start = time.Now()
	for i := 0; i < 10; i++ {
		tr.UpdateParticipant("s1", "A", StateProcessing, WithProgress(float64(i*10)))
	}
	assert.Less(t, time.Since(start), 5*timeout)

	tr.Unsubscribe(live)
	wg.Wait()
	assert.Len(t, received, 12)
}

func TestBroadcast_StallIsBoundedPerStalledSubscriber(t *testing.T) {
	timeout := 30 * time.Millisecond
	tr := New(WithBroadcastTimeout(timeout), WithSubscriberBuffer(1))

	tr.Subscribe() // never read
	tr.Subscribe() // never read

	_, err := tr.StartSession("s1", "q", nil)
	require.NoError(t, err)

	// A different session still waits on both full subscribers in turn.
	start := time.Now()
	_, err = tr.StartSession("s2", "q", nil)
	require.NoError(t, err)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 2*timeout)
	assert.Less(t, elapsed, 2*timeout+200*time.Millisecond)
	assert.Zero(t, tr.SubscriberCount())

	start = time.Now()
	_, err = tr.StartSession("s3", "q", nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), timeout)
}

func TestUnsubscribe_Twice(t *testing.T) {
	tr := New()
	sub := tr.Subscribe()

	tr.Unsubscribe(sub)
	tr.Unsubscribe(sub)
	tr.Unsubscribe(nil)

	_, open := <-sub.Updates()
	assert.False(t, open)
	assert.Zero(t, tr.SubscriberCount())

	// Broadcasting after unsubscribe must not panic.
	_, err := tr.StartSession("s1", "q", nil)
	assert.NoError(t, err)
}

func TestBroadcast_ConcurrentSessionsAndSubscribers(t *testing.T) {
	tr := New(WithBroadcastTimeout(time.Second))

	const sessions = 8
	const steps = 20

	subs := make([]*Subscription, 4)
	counts := make([]map[string][]float64, len(subs))
	var readers sync.WaitGroup
	for i := range subs {
		subs[i] = tr.Subscribe()
		counts[i] = map[string][]float64{}
		readers.Add(1)
		go func(i int) {
			defer readers.Done()
			for u := range subs[i].Updates() {
				if u.Kind == KindParticipantUpdated {
					counts[i][u.SessionID] = append(counts[i][u.SessionID], u.State.Progress)
				}
			}
		}(i)
	}

	var writers sync.WaitGroup
	for s := 0; s < sessions; s++ {
		writers.Add(1)
		go func(s int) {
			defer writers.Done()
			id := fmt.Sprintf("s%d", s)
			_, err := tr.StartSession(id, "q", []string{"A"})
			assert.NoError(t, err)
			for p := 1; p <= steps; p++ {
				tr.UpdateParticipant(id, "A", StateProcessing, WithProgress(float64(p*5)))
			}
			assert.NoError(t, tr.Complete(id, "ok"))
		}(s)
	}
	writers.Wait()

	for _, sub := range subs {
		tr.Unsubscribe(sub)
	}
	readers.Wait()

	for i := range subs {
		require.Len(t, counts[i], sessions)
		for id, seq := range counts[i] {
			require.Len(t, seq, steps, id)
			for j := 1; j < len(seq); j++ {
				assert.Less(t, seq[j-1], seq[j], "session %s updates out of order", id)
			}
		}
	}
}
