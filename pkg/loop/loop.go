// Package loop implements the generic reconciliation-loop shape used by
// the Executor (spec.md §4.6) and by any long-running poll against the
// Cluster Client: a task is called repeatedly with the last value it
// produced until it asks to stop, adapted from
// opst-knitfab/pkg/loop/loop.go.
package loop

import (
	"context"
	"fmt"
	"time"
)

// Next tells Start what to do after one Task call: continue after an
// interval, or break with (or without) an error.
type Next struct {
	err      error
	quit     bool
	interval time.Duration
}

func (n Next) String() string {
	if n.err != nil {
		return fmt.Sprintf("[break] with error: %v", n.err)
	}
	if n.quit {
		return "[break] without error"
	}
	return fmt.Sprintf("[continue] interval: %s", n.interval)
}

// Continue asks Start to call Task again after interval.
func Continue(interval time.Duration) Next { return Next{interval: interval} }

// Break asks Start to stop. err may be nil.
func Break(err error) Next { return Next{quit: true, err: err} }

// Task is one reconciliation step: given the last state, produce the
// next state and what to do next.
type Task[T any] func(context.Context, T) (T, Next)

// Start runs task repeatedly starting from init until it returns Break,
// or until ctx is done. The last value produced is always returned,
// whether or not an error accompanies it.
func Start[T any](ctx context.Context, init T, task Task[T], options ...LoopOption) (T, error) {
	select {
	case <-ctx.Done():
		return init, ctx.Err()
	default:
	}

	value := init
	for {
		lc := &loopConfig{ctx: ctx}
		for _, opt := range options {
			lc = opt(lc)
		}

		v, n := func() (T, Next) {
			ctx := lc.ctx
			if lc.deferred != nil {
				defer lc.deferred()
			}
			return task(ctx, value)
		}()

		if n.err != nil {
			return v, n.err
		}
		if n.quit {
			return v, nil
		}
		value = v

		timer := time.NewTimer(n.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return value, ctx.Err()
		case <-timer.C:
			continue
		}
	}
}

type loopConfig struct {
	ctx      context.Context
	deferred func()
}

// LoopOption customizes one iteration's context.
type LoopOption func(*loopConfig) *loopConfig

// WithTimeout bounds a single Task call with a per-iteration timeout.
func WithTimeout(d time.Duration) LoopOption {
	return func(lc *loopConfig) *loopConfig {
		ctx, cancel := context.WithTimeout(lc.ctx, d)
		return &loopConfig{
			ctx: ctx,
			deferred: func() {
				if lc.deferred != nil {
					defer lc.deferred()
				}
				cancel()
			},
		}
	}
}
