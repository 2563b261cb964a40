package publish

import (
	"context"
	"fmt"
	"sync"
)

type exclusivePublisher struct {
	mu   sync.Mutex
	next Publisher
}

// Exclusive serializes calls to a publisher that is not reentrant. Each call
// runs on its own goroutine with a context that is not cancelled with the
// caller's, so an interrupt never abandons a push halfway. A panic in the
// wrapped publisher is returned as an *Error.
func Exclusive(next Publisher) Publisher {
	return &exclusivePublisher{next: next}
}

func (e *exclusivePublisher) Publish(ctx context.Context, req Request) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &Error{Request: req, Err: fmt.Errorf("publisher panicked: %v", r)}}
			}
		}()
		result, err := e.next.Publish(context.WithoutCancel(ctx), req)
		done <- outcome{result: result, err: err}
	}()

	out := <-done
	return out.result, out.err
}
