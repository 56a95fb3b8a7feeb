package infrastructure

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockhold/internal/service/inventory/domain"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func pendingOrder(t *testing.T, id string) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(id, items("p1", 1), fixedNow, time.Minute)
	require.NoError(t, err)
	return order
}

func TestRegistry_InsertAndGet(t *testing.T) {
	r := NewMemoryOrderRegistry(func() time.Time { return fixedNow })

	require.NoError(t, r.Insert(pendingOrder(t, "o1")))
	assert.True(t, r.Exists("o1"))

	got, err := r.Get("o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, got.State)
	assert.Equal(t, fixedNow.Add(time.Minute), got.ExpiresAt)

	err = r.Insert(pendingOrder(t, "o1"))
	assert.True(t, errors.Is(err, domain.ErrDuplicateOrder))

	_, err = r.Get("missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := NewMemoryOrderRegistry(nil)
	require.NoError(t, r.Insert(pendingOrder(t, "o1")))

	got, _ := r.Get("o1")
	got.Items[0].Quantity = 99
	got.State = domain.StateConfirmed

	again, _ := r.Get("o1")
	assert.Equal(t, 1, again.Items[0].Quantity)
	assert.Equal(t, domain.StatePending, again.State)
}

func TestRegistry_TransitionCompareAndSet(t *testing.T) {
	r := NewMemoryOrderRegistry(func() time.Time { return fixedNow })
	require.NoError(t, r.Insert(pendingOrder(t, "o1")))

	updated, err := r.Transition("o1", domain.StatePending, domain.StateConfirmed)
	require.NoError(t, err)
	assert.Equal(t, domain.StateConfirmed, updated.State)
	assert.Equal(t, fixedNow, updated.ResolvedAt)

	current, err := r.Transition("o1", domain.StatePending, domain.StateExpired)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAlreadyResolved))
	var resolved *domain.AlreadyResolvedError
	require.True(t, errors.As(err, &resolved))
	assert.Equal(t, domain.StateConfirmed, resolved.Status)
	assert.Equal(t, domain.StateConfirmed, current.State)

	got, _ := r.Get("o1")
	assert.Equal(t, domain.StateConfirmed, got.State)
}

func TestRegistry_TransitionErrors(t *testing.T) {
	r := NewMemoryOrderRegistry(nil)
	require.NoError(t, r.Insert(pendingOrder(t, "o1")))

	_, err := r.Transition("missing", domain.StatePending, domain.StateConfirmed)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = r.Transition("o1", domain.StateConfirmed, domain.StateExpired)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	_, err = r.Transition("o1", domain.StatePending, domain.StatePending)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestRegistry_ConcurrentTransitionsHaveOneWinner(t *testing.T) {
	for round := 0; round < 50; round++ {
		r := NewMemoryOrderRegistry(nil)
		require.NoError(t, r.Insert(pendingOrder(t, "race")))

		var (
			wg      sync.WaitGroup
			winners int32
			start   = make(chan struct{})
		)
		for i := 0; i < 8; i++ {
			to := domain.StateConfirmed
			if i%2 == 1 {
				to = domain.StateExpired
			}
			wg.Add(1)
			go func(to domain.State) {
				defer wg.Done()
				<-start
				if _, err := r.Transition("race", domain.StatePending, to); err == nil {
					atomic.AddInt32(&winners, 1)
				}
			}(to)
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), winners)
	}
}

func TestRegistry_Count(t *testing.T) {
	r := NewMemoryOrderRegistry(nil)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Insert(pendingOrder(t, id)))
	}
	_, err := r.Transition("a", domain.StatePending, domain.StateExpired)
	require.NoError(t, err)

	assert.Equal(t, 2, r.Count(domain.StatePending))
	assert.Equal(t, 1, r.Count(domain.StateExpired))
	assert.Zero(t, r.Count(domain.StateConfirmed))
}
