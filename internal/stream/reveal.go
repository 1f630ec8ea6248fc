// Package stream simulates incremental delivery of an assistant reply. The
// backend returns complete responses, so perceived streaming is produced
// client-side by revealing the text one word at a time with a fixed delay.
package stream

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultDelay is the pause between revealed words.
const DefaultDelay = 30 * time.Millisecond

// ErrAlreadyRun is returned when a Reveal is run a second time. A reveal is
// finite and not restartable; create a new one to replay.
var ErrAlreadyRun = errors.New("reveal already consumed")

// AliveFunc reports whether the render target of a reveal still exists.
// It is checked before every emission so that a reveal in flight when the
// session switches conversations stops updating the now-detached target
// instead of writing into the wrong one.
type AliveFunc func() bool

// Reveal produces the cumulative word prefixes of a reply, in order, exactly
// once. "a b c" yields "a", "a b", "a b c".
type Reveal struct {
	words    []string
	delay    time.Duration
	alive    AliveFunc
	pos      int
	consumed bool
}

// New creates a reveal for fullText. If delay is negative, DefaultDelay is
// used; zero disables pausing, which tests rely on. alive may be nil when the
// render target cannot detach.
func New(fullText string, delay time.Duration, alive AliveFunc) *Reveal {
	if delay < 0 {
		delay = DefaultDelay
	}
	var words []string
	if fullText != "" {
		words = strings.Split(fullText, " ")
	}
	return &Reveal{words: words, delay: delay, alive: alive}
}

// Next returns the next cumulative prefix without pausing. The second return
// value is false once the sequence is exhausted. Used by render loops that
// schedule their own ticks.
func (r *Reveal) Next() (string, bool) {
	if r.pos >= len(r.words) {
		return "", false
	}
	r.pos++
	r.consumed = true
	return strings.Join(r.words[:r.pos], " "), true
}

// Done reports whether the full text has been yielded.
func (r *Reveal) Done() bool {
	return r.pos >= len(r.words)
}

// Delay returns the configured inter-word delay.
func (r *Reveal) Delay() time.Duration {
	return r.delay
}

// FullText returns the complete reply the reveal was created for.
func (r *Reveal) FullText() string {
	return strings.Join(r.words, " ")
}

// Run drives the reveal to completion, calling apply with each cumulative
// prefix and pausing for the configured delay between words.
//
// Before every call to apply the liveness function is checked; when it
// reports false the reveal stops silently and Run returns nil, leaving the
// detached target untouched. Cancelling ctx stops the reveal with ctx's
// error. Run may be called once: a second call returns ErrAlreadyRun.
func (r *Reveal) Run(ctx context.Context, apply func(partial string)) error {
	if r.consumed {
		return ErrAlreadyRun
	}
	for {
		if r.alive != nil && !r.alive() {
			return nil
		}
		partial, ok := r.Next()
		if !ok {
			return nil
		}
		apply(partial)
		if r.Done() || r.delay == 0 {
			if r.Done() {
				return nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delay):
		}
	}
}
