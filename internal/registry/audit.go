package registry

// auditLog is the append-only record of detected conflicts. A positive
// capacity bounds it; the oldest entries are dropped first. total counts
// every conflict appended since the last clear, dropped ones included.
type auditLog struct {
	entries  []Conflict
	capacity int
	total    int
}

func (a *auditLog) append(c Conflict) {
	a.total++
	a.entries = append(a.entries, c)
	if a.capacity > 0 && len(a.entries) > a.capacity {
		drop := len(a.entries) - a.capacity
		a.entries = append(a.entries[:0:0], a.entries[drop:]...)
	}
}

func (a *auditLog) snapshot() []Conflict {
	out := make([]Conflict, len(a.entries))
	copy(out, a.entries)
	return out
}

func (a *auditLog) clear() {
	a.entries = nil
	a.total = 0
}

// ConflictHistory returns a copy of every conflict detected since the last
// ClearConflictHistory, oldest first.
func (r *Registry) ConflictHistory() []Conflict {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.audit.snapshot()
}

// ClearConflictHistory empties the audit log. Registrations are untouched.
func (r *Registry) ClearConflictHistory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit.clear()
}

// Stats returns resource counts per kind, the number of distinct owners and
// the number of conflicts detected since the last ClearConflictHistory. The
// conflict count keeps growing when max history trims the log.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Kinds:          make(map[Kind]int, numKinds),
		TotalConflicts: r.audit.total,
		Owners:         len(r.store.owners),
	}
	for _, k := range Kinds() {
		n := r.store.count(k)
		stats.Kinds[k] = n
		stats.TotalResources += n
	}
	return stats
}
