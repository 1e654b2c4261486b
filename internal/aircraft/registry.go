package aircraft

import (
	"sort"

	"github.com/EngineStateManager/extension/pkg/hostapi"
)

// Registry owns every Tracked record, keyed by vehicle handle. Like the rest
// of the frame loop it is not safe for concurrent use.
type Registry struct {
	records map[hostapi.Handle]*Tracked
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[hostapi.Handle]*Tracked, 64)}
}

// GetOrCreate returns the record for h, creating a fresh one touched at now.
// created reports whether the record is new.
func (r *Registry) GetOrCreate(h hostapi.Handle, now int64) (t *Tracked, created bool) {
	if t, ok := r.records[h]; ok {
		return t, false
	}
	t = &Tracked{Handle: h, LastTouchedTime: now}
	r.records[h] = t
	return t, true
}

// Get returns the record for h, or nil.
func (r *Registry) Get(h hostapi.Handle) *Tracked {
	return r.records[h]
}

// Remove forgets h. Releasing its decoy is the caller's job.
func (r *Registry) Remove(h hostapi.Handle) {
	delete(r.records, h)
}

// Len returns the number of tracked records.
func (r *Registry) Len() int { return len(r.records) }

// Handles returns a sorted snapshot of the tracked handles, safe to range
// over while records are removed.
func (r *Registry) Handles() []hostapi.Handle {
	out := make([]hostapi.Handle, 0, len(r.records))
	for h := range r.records {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Each calls fn for every record in handle order.
func (r *Registry) Each(fn func(t *Tracked)) {
	for _, h := range r.Handles() {
		if t, ok := r.records[h]; ok {
			fn(t)
		}
	}
}

// Prune removes the least recently touched records until at most max remain
// and returns them, oldest first. Ties break on handle so eviction is
// deterministic.
func (r *Registry) Prune(max int) []*Tracked {
	over := len(r.records) - max
	if over <= 0 {
		return nil
	}
	all := make([]*Tracked, 0, len(r.records))
	for _, t := range r.records {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].LastTouchedTime != all[j].LastTouchedTime {
			return all[i].LastTouchedTime < all[j].LastTouchedTime
		}
		return all[i].Handle < all[j].Handle
	})
	evicted := all[:over]
	for _, t := range evicted {
		delete(r.records, t.Handle)
	}
	return evicted
}

// Snapshot returns copies of every record in handle order.
func (r *Registry) Snapshot() []Tracked {
	out := make([]Tracked, 0, len(r.records))
	r.Each(func(t *Tracked) { out = append(out, *t) })
	return out
}

// Clear drops every record and returns what was removed.
func (r *Registry) Clear() []*Tracked {
	var out []*Tracked
	r.Each(func(t *Tracked) { out = append(out, t) })
	r.records = make(map[hostapi.Handle]*Tracked, 64)
	return out
}
