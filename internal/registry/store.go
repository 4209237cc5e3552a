package registry

import (
	"slices"
	"strings"
)

// store holds one ownership map per kind plus the owner → resources reverse
// index. It performs no locking and no conflict checks; Registry guards it.
type store struct {
	records [numKinds]map[string]*Record
	owners  map[string]*ownedSet
}

// ownedSet is the set of resource ids one owner holds, split by kind.
type ownedSet [numKinds]map[string]struct{}

func (s *ownedSet) empty() bool {
	for _, ids := range s {
		if len(ids) > 0 {
			return false
		}
	}
	return true
}

func newStore() *store {
	s := &store{owners: make(map[string]*ownedSet)}
	for k := range s.records {
		s.records[k] = make(map[string]*Record)
	}
	return s
}

func (s *store) get(kind Kind, id string) (*Record, bool) {
	rec, ok := s.records[kind][id]
	return rec, ok
}

// put overwrites whatever is stored at (kind, id) and moves the id in the
// ownership index from the previous owner to rec.Owner.
func (s *store) put(kind Kind, id string, rec *Record) {
	if prev, ok := s.records[kind][id]; ok && prev.Owner != rec.Owner {
		s.unindex(prev.Owner, kind, id)
	}
	s.records[kind][id] = rec

	set, ok := s.owners[rec.Owner]
	if !ok {
		set = &ownedSet{}
		s.owners[rec.Owner] = set
	}
	if set[kind] == nil {
		set[kind] = make(map[string]struct{})
	}
	set[kind][id] = struct{}{}
}

// remove deletes (kind, id) only when owner currently holds it. Absent and
// not-owned both report false.
func (s *store) remove(kind Kind, id, owner string) bool {
	rec, ok := s.records[kind][id]
	if !ok || rec.Owner != owner {
		return false
	}
	delete(s.records[kind], id)
	s.unindex(owner, kind, id)
	return true
}

func (s *store) unindex(owner string, kind Kind, id string) {
	set, ok := s.owners[owner]
	if !ok {
		return
	}
	delete(set[kind], id)
	if set.empty() {
		delete(s.owners, owner)
	}
}

// removeOwner drops every record held by owner and returns the removed
// records grouped by kind.
func (s *store) removeOwner(owner string) map[Kind][]string {
	set, ok := s.owners[owner]
	if !ok {
		return nil
	}
	removed := make(map[Kind][]string)
	for k := range set {
		for id := range set[k] {
			delete(s.records[k], id)
			removed[Kind(k)] = append(removed[Kind(k)], id)
		}
	}
	delete(s.owners, owner)
	for k := range removed {
		slices.Sort(removed[k])
	}
	return removed
}

// resourcesOf lists the ids owner holds, sorted, for kinds with at least
// one id.
func (s *store) resourcesOf(owner string) map[Kind][]string {
	out := make(map[Kind][]string)
	set, ok := s.owners[owner]
	if !ok {
		return out
	}
	for k := range set {
		if len(set[k]) == 0 {
			continue
		}
		ids := make([]string, 0, len(set[k]))
		for id := range set[k] {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		out[Kind(k)] = ids
	}
	return out
}

func (s *store) count(kind Kind) int {
	return len(s.records[kind])
}

func (s *store) list(kind Kind) []Record {
	out := make([]Record, 0, len(s.records[kind]))
	for _, rec := range s.records[kind] {
		out = append(out, rec.clone())
	}
	slices.SortFunc(out, func(a, b Record) int {
		return strings.Compare(a.ResourceID, b.ResourceID)
	})
	return out
}

func (s *store) ownerNames() []string {
	names := make([]string, 0, len(s.owners))
	for name := range s.owners {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
