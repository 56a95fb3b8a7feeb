package adapter

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"stockhold/internal/pkg/mq"
	"stockhold/internal/service/inventory/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingHandler 记录到期回调，并在每次回调时通知测试
type recordingHandler struct {
	mu    sync.Mutex
	fired []string
	ch    chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{ch: make(chan string, 16)}
}

func (h *recordingHandler) ExpireOrder(_ context.Context, orderID string) error {
	h.mu.Lock()
	h.fired = append(h.fired, orderID)
	h.mu.Unlock()
	h.ch <- orderID
	return nil
}

func (h *recordingHandler) firedIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.fired...)
}

func TestTimerScheduler_FiresAtDeadline(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Close()
	h := newRecordingHandler()
	s.Register(h)

	require.NoError(t, s.ScheduleExpiry(context.Background(), "O1", time.Now().Add(20*time.Millisecond)))
	assert.Equal(t, 1, s.Pending())

	select {
	case id := <-h.ch:
		assert.Equal(t, "O1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("expiry never fired")
	}
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTimerScheduler_PastDeadlineFiresImmediately(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Close()
	h := newRecordingHandler()
	s.Register(h)

	require.NoError(t, s.ScheduleExpiry(context.Background(), "late", time.Now().Add(-time.Second)))
	select {
	case id := <-h.ch:
		assert.Equal(t, "late", id)
	case <-time.After(2 * time.Second):
		t.Fatal("expiry never fired")
	}
}

func TestTimerScheduler_Cancel(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Close()
	h := newRecordingHandler()
	s.Register(h)

	require.NoError(t, s.ScheduleExpiry(context.Background(), "O1", time.Now().Add(50*time.Millisecond)))
	s.CancelExpiry(context.Background(), "O1")
	assert.Equal(t, 0, s.Pending())

	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, h.firedIDs())

	// 取消不存在的任务是空操作
	s.CancelExpiry(context.Background(), "unknown")
}

func TestTimerScheduler_RequiresHandler(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Close()
	assert.Error(t, s.ScheduleExpiry(context.Background(), "O1", time.Now().Add(time.Minute)))
}

func TestTimerScheduler_CloseStopsPendingTimers(t *testing.T) {
	s := NewTimerScheduler()
	h := newRecordingHandler()
	s.Register(h)

	require.NoError(t, s.ScheduleExpiry(context.Background(), "O1", time.Now().Add(30*time.Millisecond)))
	s.Close()

	assert.Equal(t, 0, s.Pending())
	assert.ErrorIs(t, s.ScheduleExpiry(context.Background(), "O2", time.Now()), ErrSchedulerClosed)
	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, h.firedIDs())
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func sampleEvent() *domain.OrderEvent {
	order := domain.Order{
		ID:    "O1",
		State: domain.StatePending,
		Items: []domain.LineItem{{ProductID: "P1", Quantity: 2}},
	}
	return domain.NewOrderEvent(domain.EventOrderCreated, order, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
}

func TestEventKafkaAdapter_Publish(t *testing.T) {
	w := &fakeWriter{}
	a := NewEventKafkaAdapter(w)

	event := sampleEvent()
	require.NoError(t, a.Publish(context.Background(), event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "O1", string(msg.Key))
	carrier := mq.KafkaHeaderCarrier(msg.Headers)
	assert.Equal(t, string(domain.EventOrderCreated), carrier.Get(eventTypeHeader))

	var decoded domain.OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, domain.StatePending, decoded.Status)
	assert.Equal(t, event.Items, decoded.Items)
}

func TestEventKafkaAdapter_PublishError(t *testing.T) {
	a := NewEventKafkaAdapter(&fakeWriter{err: errors.New("broker down")})
	err := a.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

type countingPublisher struct {
	calls int
	err   error
}

func (p *countingPublisher) Publish(context.Context, *domain.OrderEvent) error {
	p.calls++
	return p.err
}

func TestMultiPublisher_DeliversToEverySink(t *testing.T) {
	failing := &countingPublisher{err: errors.New("sink failed")}
	ok := &countingPublisher{}
	m := NewMultiPublisher(failing, nil, ok, NewEventLogAdapter())

	err := m.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 event sinks failed")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)

	assert.NoError(t, NewMultiPublisher().Publish(context.Background(), sampleEvent()))
}

// 需要一个真实的 Redis，设置 REDIS_ADDR 后运行
func TestRedisDelayScheduler_ClaimsDueOrders(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	key := "test:inventory:order-expiry:" + time.Now().Format("150405.000000")
	defer client.Del(ctx, key)

	s := NewRedisDelayScheduler(client, key, 10*time.Millisecond, 10)
	h := newRecordingHandler()
	s.Register(h)

	now := time.Now()
	require.NoError(t, s.ScheduleExpiry(ctx, "due", now.Add(-time.Second)))
	require.NoError(t, s.ScheduleExpiry(ctx, "later", now.Add(time.Hour)))
	require.NoError(t, s.ScheduleExpiry(ctx, "cancelled", now.Add(-time.Second)))
	s.CancelExpiry(ctx, "cancelled")

	n, err := s.Poll(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"due"}, h.firedIDs())

	// 已领取的任务不会被再次领取
	n, err = s.Poll(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	remaining, err := client.ZCard(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}
