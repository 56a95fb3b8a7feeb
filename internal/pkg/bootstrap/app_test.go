package bootstrap

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, AppInfo{
			ServiceName: "test",
			Listener:    listener,
			RegisterHandlers: func(mux *http.ServeMux) {
				mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "pong") })
			},
			Workers: []func(context.Context) error{
				func(ctx context.Context) error { <-ctx.Done(); return nil },
			},
			Cleanups: []func(context.Context) error{record("first"), record("second")},
		})
	}()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + listener.Addr().String() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestRun_WorkerFailureStopsService(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	boom := errors.New("reaper crashed")
	cleaned := false
	err = Run(context.Background(), AppInfo{
		ServiceName: "test",
		Listener:    listener,
		Workers: []func(context.Context) error{
			func(context.Context) error { return boom },
		},
		Cleanups: []func(context.Context) error{
			func(context.Context) error { cleaned = true; return nil },
		},
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, cleaned)
}
