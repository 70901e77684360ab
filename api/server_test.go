package api

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lylin/knowbase/internal/log"
)

// Cancelling the context shuts the server down and Run reports no error,
// even though ListenAndServe surfaces a wrapped http.ErrServerClosed.
func TestServer_RunGracefulShutdown(t *testing.T) {
	srv := NewServer(nil, newFakeStore(), &eventAgent{}, nil, nil, nil, log.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx, "127.0.0.1:0")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

// A failing listen surfaces the error to the caller.
func TestServer_RunListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewServer(nil, newFakeStore(), &eventAgent{}, nil, nil, nil, log.NewNop())
	err = srv.Run(context.Background(), ln.Addr().String())
	require.Error(t, err)
}
