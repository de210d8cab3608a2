// Package checkpoint holds pipeline progress between runs.
package checkpoint

import (
	"errors"
	"sort"

	"thread_harvester/internal/domain"
)

// ErrNotFound is returned when a required artifact has never been written.
var ErrNotFound = errors.New("checkpoint not found")

// State maps each extracted thread URL to its record.
type State map[domain.ThreadURL]domain.ThreadRecord

func NewState() State {
	return make(State)
}

func (s State) Has(u domain.ThreadURL) bool {
	_, ok := s[u]
	return ok
}

// Put stores rec unless a record for its URL already exists. Records are
// written once and never replaced.
func (s State) Put(rec domain.ThreadRecord) bool {
	if s.Has(rec.URL) {
		return false
	}
	s[rec.URL] = rec
	return true
}

// Keys returns the stored URLs in ascending order.
func (s State) Keys() []domain.ThreadURL {
	keys := make([]domain.ThreadURL, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Merge returns the union of existing and fresh. On a key present in both,
// the existing record is kept.
func Merge(existing, fresh State) State {
	out := make(State, len(existing)+len(fresh))
	for k, v := range existing {
		out[k] = v
	}
	for _, v := range fresh {
		out.Put(v)
	}
	return out
}

// Missing returns the requested URLs that have no record in existing, in
// request order and without duplicates.
func Missing(requested []domain.ThreadURL, existing State) []domain.ThreadURL {
	seen := make(map[domain.ThreadURL]struct{}, len(requested))
	var out []domain.ThreadURL
	for _, u := range requested {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if !existing.Has(u) {
			out = append(out, u)
		}
	}
	return out
}
