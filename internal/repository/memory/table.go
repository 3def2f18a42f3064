package memory

import (
	"slices"
	"sync"

	"github.com/splax/servertracker/internal/repository"
)

// table is a lock-free id-keyed collection. Rows are stored as pointers to
// private copies so callers never alias stored state.
type table[T any] struct {
	rows   sync.Map // int64 -> *T
	idOf   func(T) int64
	withID func(T, int64) T
}

// insert stores row under a freshly allocated id. The candidate id is the
// current maximum plus one; when a concurrent writer claims it first the
// candidate is recomputed. Ids are unique but may skip values.
func (t *table[T]) insert(row T) T {
	for {
		candidate := t.maxID() + 1
		stored := t.withID(row, candidate)
		if _, loaded := t.rows.LoadOrStore(candidate, &stored); !loaded {
			return stored
		}
	}
}

func (t *table[T]) maxID() int64 {
	var highest int64
	t.rows.Range(func(key, _ any) bool {
		if id := key.(int64); id > highest {
			highest = id
		}
		return true
	})
	return highest
}

func (t *table[T]) get(id int64) (T, error) {
	value, ok := t.rows.Load(id)
	if !ok {
		var zero T
		return zero, repository.ErrNotFound
	}
	return *value.(*T), nil
}

// list returns rows accepted by keep (all rows when keep is nil) ordered by id.
func (t *table[T]) list(keep func(T) bool) []T {
	rows := make([]T, 0)
	t.rows.Range(func(_, value any) bool {
		row := *value.(*T)
		if keep == nil || keep(row) {
			rows = append(rows, row)
		}
		return true
	})
	slices.SortFunc(rows, func(a, b T) int {
		switch ia, ib := t.idOf(a), t.idOf(b); {
		case ia < ib:
			return -1
		case ia > ib:
			return 1
		}
		return 0
	})
	return rows
}

// replace swaps the row stored under id. It fails with ErrNotFound when the id
// is absent, including when a concurrent delete wins the race.
func (t *table[T]) replace(id int64, fn func(current T) T) (T, error) {
	for {
		current, ok := t.rows.Load(id)
		if !ok {
			var zero T
			return zero, repository.ErrNotFound
		}
		next := fn(*current.(*T))
		if t.rows.CompareAndSwap(id, current, &next) {
			return next, nil
		}
	}
}

func (t *table[T]) remove(id int64) {
	t.rows.Delete(id)
}

func (t *table[T]) len() int {
	n := 0
	t.rows.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
