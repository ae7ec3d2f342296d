package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFixedWaitStrategy(t *testing.T) {
	w := FixedWaitStrategy(5 * time.Second)
	for i := 0; i < 3; i++ {
		require.Equal(t, 5*time.Second, w.NextWait())
	}
	w.Reset()
	require.Equal(t, 5*time.Second, w.NextWait())
}

func TestBackoffWaitStrategy(t *testing.T) {
	min, max := 100*time.Millisecond, 5*time.Second
	w := BackoffWaitStrategy(min, max)

	// first wait after a reset is exactly min
	require.Equal(t, min, w.NextWait())

	for i := 0; i < 20; i++ {
		d := w.NextWait()
		require.GreaterOrEqual(t, d, min)
		require.LessOrEqual(t, d, max)
	}

	w.Reset()
	require.Equal(t, min, w.NextWait())
}
