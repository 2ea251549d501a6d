package botstest

import (
	"context"

	"github.com/orlodrim/wikibots-go/pkg/changelog"
)

// FakeChangeEnumerator replays a fixed slice of changes, applying the
// same StartTimestamp/EndTimestamp/KindMask filtering the real
// changelog.Reader.Enumerate does, so scanner tests can exercise the
// filtering contract without a SQLite-backed Store.
type FakeChangeEnumerator struct {
	Changes []changelog.Change
}

func (f *FakeChangeEnumerator) Enumerate(ctx context.Context, opts changelog.EnumerateOptions, cb changelog.Callback) error {
	for _, c := range f.Changes {
		if opts.StartTimestamp != nil && c.Timestamp < *opts.StartTimestamp {
			continue
		}
		if opts.EndTimestamp != nil && c.Timestamp > *opts.EndTimestamp {
			continue
		}
		if opts.KindMask != 0 {
			allowed := false
			switch c.Kind {
			case changelog.KindEdit:
				allowed = opts.KindMask&changelog.MaskEdit != 0
			case changelog.KindNewPage:
				allowed = opts.KindMask&changelog.MaskNewPage != 0
			case changelog.KindLog:
				allowed = opts.KindMask&changelog.MaskLog != 0
			}
			if !allowed {
				continue
			}
		}
		if !cb(c) {
			break
		}
	}
	return nil
}
