package ticker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodically(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := 0
	err := Periodically(ctx, slog.Default(), time.Millisecond, func(ctx context.Context) error {
		runs++
		if runs == 3 {
			cancel()
		}
		// errors do not stop the loop
		return errors.New("boom")
	})
	assert.ErrorIs(err, context.Canceled)
	assert.Equal(3, runs)
}
