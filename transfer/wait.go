package transfer

import (
	"time"

	"github.com/jpillora/backoff"
)

// DefaultPollInterval is the wait between idle poll passes when no
// strategy is configured.
const DefaultPollInterval = 5 * time.Second

type fixedWait struct {
	d time.Duration
}

// FixedWaitStrategy waits the same duration after every idle pass.
func FixedWaitStrategy(d time.Duration) WaitStrategy {
	return &fixedWait{d: d}
}

func (f *fixedWait) NextWait() time.Duration { return f.d }

func (f *fixedWait) Reset() {}

type backoffWait struct {
	b *backoff.Backoff
}

// BackoffWaitStrategy backs off exponentially between idle passes, with
// jitter, returning to min as soon as a pass finds work.
func BackoffWaitStrategy(min, max time.Duration) WaitStrategy {
	return &backoffWait{b: &backoff.Backoff{
		Min:    min,
		Max:    max,
		Factor: 2,
		Jitter: true,
	}}
}

func (w *backoffWait) NextWait() time.Duration { return w.b.Duration() }

func (w *backoffWait) Reset() { w.b.Reset() }
