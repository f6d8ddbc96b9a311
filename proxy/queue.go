// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package proxy

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned when enqueueing after Close.
var ErrQueueClosed = errors.New("proxy: queue closed")

// Queue is a single-producer single-consumer FIFO of frame work.
//
// Enqueue waits until the previous unit has been drained, so work of frame
// N is fully executed before frame N+1 is accepted. Results travel back on
// a separate channel.
type Queue struct {
	work    chan *FrameWork
	idle    chan struct{}
	results chan ExecutionStats
	done    chan struct{}

	// mu orders handing work over against Close, so Run sees every unit
	// accepted before the queue closed.
	mu     sync.Mutex
	closed bool
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	q := &Queue{
		work:    make(chan *FrameWork, 1),
		idle:    make(chan struct{}, 1),
		results: make(chan ExecutionStats, 1),
		done:    make(chan struct{}),
	}
	q.idle <- struct{}{}
	return q
}

// Enqueue hands fw to the consumer. It blocks while the previous unit is
// still being drained.
func (q *Queue) Enqueue(ctx context.Context, fw *FrameWork) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case <-q.idle:
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.idle <- struct{}{}
		return ErrQueueClosed
	}
	q.work <- fw
	return nil
}

// Results returns the channel execution statistics are delivered on.
// When nobody reads, older results are dropped in favor of newer ones.
func (q *Queue) Results() <-chan ExecutionStats { return q.results }

// Close stops the queue. Work already enqueued is still drained by Run.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}

// Run drains the queue, calling exec for every unit in FIFO order until
// ctx is canceled or the queue is closed and empty.
func (q *Queue) Run(ctx context.Context, exec func(*FrameWork) ExecutionStats) error {
	for {
		select {
		case fw := <-q.work:
			q.publish(exec(fw))
			q.idle <- struct{}{}
		case <-q.done:
			select {
			case fw := <-q.work:
				q.publish(exec(fw))
			default:
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *Queue) publish(st ExecutionStats) {
	for {
		select {
		case q.results <- st:
			return
		default:
		}
		select {
		case <-q.results:
		default:
		}
	}
}
