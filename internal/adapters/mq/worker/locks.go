package worker

import (
	"slices"
	"sync"

	"github.com/okian/rallyscore/internal/domain/model"
)

// matchLocks serializes batches of the same match so a batch always reads
// the points its predecessor stored.
type matchLocks struct {
	mu    sync.Mutex
	locks map[int]*matchLock
}

type matchLock struct {
	sync.Mutex
	refs int
}

func newMatchLocks() *matchLocks {
	return &matchLocks{locks: make(map[int]*matchLock)}
}

// lock takes the locks of ids, which must be sorted, and returns the unlock.
func (l *matchLocks) lock(ids []int) func() {
	held := make([]*matchLock, 0, len(ids))
	for _, id := range ids {
		l.mu.Lock()
		ml, ok := l.locks[id]
		if !ok {
			ml = &matchLock{}
			l.locks[id] = ml
		}
		ml.refs++
		l.mu.Unlock()

		ml.Lock()
		held = append(held, ml)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, ids[i])
			}
			l.mu.Unlock()
		}
	}
}

// matchIDs returns the distinct match ids of rows in ascending order.
func matchIDs(rows []model.RallyObservation) []int {
	ids := make([]int, 0, 1)
	for i := range rows {
		ids = append(ids, rows[i].MatchID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
