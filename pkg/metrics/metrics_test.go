package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ln)
	}()

	base := "http://" + ln.Addr().String()
	resp, err := http.Get(base + "/ping")
	require.NoError(err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal("OK", string(body))

	resp, err = http.Get(base + "/metrics")
	require.NoError(err)
	resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not shut down")
	}
}

func TestRunServerDisabled(t *testing.T) {
	assert.NoError(t, RunServer(context.Background(), ""))
}
