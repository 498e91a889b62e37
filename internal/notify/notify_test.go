package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/wolfeidau/governor/internal/models"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]Notification
	fails   atomic.Int32
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, batch []Notification) error {
	if s.fails.Load() > 0 {
		s.fails.Add(-1)
		return errors.New("unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Notification(nil), batch...))
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, b := range s.batches {
		total += len(b)
	}
	return total
}

func testNotification(kind Kind) Notification {
	return Notification{
		ID:       models.NewID(),
		Kind:     kind,
		OrgID:    models.NewID(),
		CircleID: models.NewID(),
		Summary:  "test",
		At:       time.Now(),
	}
}

func TestDispatcherBatching(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}

	d, err := NewDispatcher(DispatcherConfig{MaxBatchSize: 3, FlushInterval: time.Hour}, sink)
	require.NoError(t, err)

	for range 7 {
		d.Publish(ctx, testNotification(KindDecisionEvent))
	}

	require.Eventually(t, func() bool { return sink.count() == 6 }, time.Second, 5*time.Millisecond,
		"full batches should be sent without waiting for the timer")

	require.NoError(t, d.Stop(ctx))
	require.Equal(t, 7, sink.count(), "shutdown should flush the partial batch")

	sink.mu.Lock()
	require.Len(t, sink.batches, 3)
	require.Len(t, sink.batches[2], 1)
	sink.mu.Unlock()
}

func TestDispatcherTimerFlush(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}

	d, err := NewDispatcher(DispatcherConfig{MaxBatchSize: 100, FlushInterval: 20 * time.Millisecond}, sink)
	require.NoError(t, err)
	defer func() { _ = d.Stop(ctx) }()

	d.Publish(ctx, testNotification(KindMeeting))

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherRetriesSink(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	sink.fails.Store(2)

	d, err := NewDispatcher(DispatcherConfig{MaxBatchSize: 1, MaxSendAttempts: 3}, sink)
	require.NoError(t, err)

	d.Publish(ctx, testNotification(KindHierarchy))
	require.NoError(t, d.Stop(ctx))
	require.Equal(t, 1, sink.count())
}

func TestDispatcherNeverBlocks(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	sink := &blockingSink{release: block}

	d, err := NewDispatcher(DispatcherConfig{QueueSize: 2, MaxBatchSize: 1}, sink)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			d.Publish(ctx, testNotification(KindDecisionEvent))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled sink")
	}

	close(block)
	require.NoError(t, d.Stop(ctx))
	require.Less(t, int(sink.sent.Load()), 100)

	// Publishing after stop drops instead of panicking.
	d.Publish(ctx, testNotification(KindDecisionEvent))
}

type blockingSink struct {
	release chan struct{}
	sent    atomic.Int32
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Send(_ context.Context, batch []Notification) error {
	<-s.release
	s.sent.Add(int32(len(batch)))
	return nil
}

func TestDispatcherConfig(t *testing.T) {
	cfg := DispatcherConfig{}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 1024, cfg.QueueSize)
	require.Equal(t, 50, cfg.MaxBatchSize)

	_, err := NewDispatcher(DispatcherConfig{QueueSize: -1})
	require.Error(t, err)
}

func TestRedisSink(t *testing.T) {
	ctx := context.Background()
	s := miniredis.RunT(t)

	client, err := NewRedisClient(ctx, "redis://"+s.Addr())
	require.NoError(t, err)
	defer client.Close()

	sink := NewRedisSink(client, "", 100)
	batch := []Notification{testNotification(KindDecisionEvent), testNotification(KindMeeting)}
	require.NoError(t, sink.Send(ctx, batch))

	entries, err := client.XRange(ctx, "governor:notifications", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, batch[0].ID.String(), entries[0].Values["id"])
	require.Equal(t, string(KindMeeting), entries[1].Values["kind"])

	var decoded Notification
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["payload"].(string)), &decoded))
	require.Equal(t, batch[0].OrgID, decoded.OrgID)
}

func TestRedisSinkUnavailable(t *testing.T) {
	ctx := context.Background()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	s.Close()

	sink := NewRedisSink(client, "events", 0)
	require.Error(t, sink.Send(ctx, []Notification{testNotification(KindDecisionEvent)}))
}

type fakeNATS struct {
	subjects []string
	err      error
}

func (f *fakeNATS) Publish(subj string, _ []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subj)
	return nil
}

func TestNATSSink(t *testing.T) {
	ctx := context.Background()
	conn := &fakeNATS{}
	sink := NewNATSSink(conn, "")

	n := testNotification(KindDecisionEvent)
	require.NoError(t, sink.Send(ctx, []Notification{n}))
	require.Equal(t, []string{"governor.decision_event." + n.OrgID.String()}, conn.subjects)

	conn.err = errors.New("closed")
	require.Error(t, sink.Send(ctx, []Notification{n}))
}

type fakeKafka struct {
	records []*kgo.Record
	err     error
}

func (f *fakeKafka) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if f.err == nil {
			f.records = append(f.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func TestKafkaSink(t *testing.T) {
	ctx := context.Background()
	producer := &fakeKafka{}
	sink := NewKafkaSink(producer, "")

	n := testNotification(KindMeeting)
	require.NoError(t, sink.Send(ctx, []Notification{n}))
	require.Len(t, producer.records, 1)
	require.Equal(t, "governor.notifications", producer.records[0].Topic)
	require.Equal(t, []byte(n.OrgID.String()), producer.records[0].Key)

	producer.err = errors.New("broker down")
	require.Error(t, sink.Send(ctx, []Notification{n}))
}
