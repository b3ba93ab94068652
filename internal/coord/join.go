package coord

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"predictdash/internal/apperr"
)

// Task is one leg of a fan-out.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Outcome is the result of one Task.
type Outcome struct {
	Name string
	Err  error
}

// JoinStatus summarises a set of outcomes.
type JoinStatus int

const (
	JoinOK JoinStatus = iota
	JoinPartial
	JoinFailed
)

func (s JoinStatus) String() string {
	switch s {
	case JoinPartial:
		return "partial"
	case JoinFailed:
		return "failed"
	default:
		return "ok"
	}
}

// Join runs tasks concurrently and waits for all of them. A failing task
// does not cancel its siblings; every task gets its own Outcome, in the
// order the tasks were given. A panicking task is recorded as failed.
func Join(ctx context.Context, tasks ...Task) []Outcome {
	out := make([]Outcome, len(tasks))
	var g errgroup.Group
	for i, t := range tasks {
		out[i].Name = t.Name
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%s: panic: %v", t.Name, r)
				}
				out[i].Err = err
			}()
			return t.Run(ctx)
		})
	}
	_ = g.Wait()
	return out
}

// Summarize folds outcomes into ok, partial or failed. Cancelled legs do
// not count as failures: when every leg was either fine or cancelled the
// join is ok.
func Summarize(outcomes []Outcome) JoinStatus {
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil && !apperr.IsCancelled(o.Err) {
			failed++
		}
	}
	switch {
	case failed == 0:
		return JoinOK
	case failed == len(outcomes):
		return JoinFailed
	default:
		return JoinPartial
	}
}
