package botstest

import (
	"context"

	"github.com/orlodrim/wikibots-go/pkg/jobqueue"
)

// FakeJobInserter records Insert calls and enforces IgnoreIfExists
// dedup by (Handler, Key), matching the real jobqueue.Queue semantics
// the internal/bots scanners rely on.
type FakeJobInserter struct {
	Jobs   []jobqueue.Job
	nextID int64
}

func (f *FakeJobInserter) Insert(ctx context.Context, job jobqueue.Job, mode jobqueue.InsertMode) (int64, error) {
	if mode == jobqueue.IgnoreIfExists {
		for i, existing := range f.Jobs {
			if existing.Handler == job.Handler && existing.Key == job.Key {
				return int64(i + 1), nil
			}
		}
	}
	f.nextID++
	job.ID = f.nextID
	f.Jobs = append(f.Jobs, job)
	return f.nextID, nil
}
