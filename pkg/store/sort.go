package store

import "sort"

// newestFirst sorts any slice of entities by an extracted Unix-nano
// timestamp, descending, stably. Used by list_runs/list_candidates/
// list_evaluations' newest-first contract (§4.1).
func newestFirst[T any](items []T, createdAtNano func(T) int64) {
	sort.SliceStable(items, func(i, j int) bool {
		return createdAtNano(items[i]) > createdAtNano(items[j])
	})
}
