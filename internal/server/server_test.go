package server

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigit/chatsphere/internal/bootstrap"
	"github.com/yigit/chatsphere/internal/config"
	"github.com/yigit/chatsphere/internal/pkg/websocket"
)

func newTestServer(t *testing.T, port string) (*Server, *atomic.Int32) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Server.Port = port
	cfg.Server.ShutdownTimeout = "2s"

	var flushes atomic.Int32
	return &Server{
		config: cfg,
		router: gin.New(),
		infra:  &bootstrap.Infrastructure{Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()})},
		deps:   &bootstrap.Dependencies{WSRouter: websocket.NewRouter(nil, nil, nil, zerolog.Nop())},
		tracing: func(context.Context) error {
			flushes.Add(1)
			return nil
		},
		logger: zerolog.Nop(),
	}, &flushes
}

func TestRunTearsDownOnceWhenCancelled(t *testing.T) {
	s, flushes := newTestServer(t, "0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// A second close of the redis client would surface as an error here
	assert.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, int32(1), flushes.Load())
}

func TestRunReportsListenFailureAndTearsDownOnce(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	s, flushes := newTestServer(t, strconv.Itoa(ln.Addr().(*net.TCPAddr).Port))

	err = s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error starting server")

	assert.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, int32(1), flushes.Load())
}

func TestConcurrentShutdownCallsShareOneTeardown(t *testing.T) {
	s, flushes := newTestServer(t, "0")

	errs := make(chan error, 4)
	for i := 0; i < cap(errs); i++ {
		go func() { errs <- s.Shutdown(context.Background()) }()
	}
	for i := 0; i < cap(errs); i++ {
		assert.NoError(t, <-errs)
	}
	assert.Equal(t, int32(1), flushes.Load())
}
