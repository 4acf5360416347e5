package reconcile

import "fmt"

// ChangeSet partitions the rows needed to reconcile persisted state into the
// three write buckets. A given fact key must appear in at most one bucket; a
// row is never simultaneously inserted and deleted within one request.
type ChangeSet[F Keyed] struct {
	Inserts []F
	Updates []F
	Deletes []F
}

// Empty reports whether applying the set would write nothing.
func (s ChangeSet[F]) Empty() bool {
	return len(s.Inserts) == 0 && len(s.Updates) == 0 && len(s.Deletes) == 0
}

// Size returns the total number of rows across all buckets.
func (s ChangeSet[F]) Size() int {
	return len(s.Inserts) + len(s.Updates) + len(s.Deletes)
}

// Validate checks the disjointness invariant across buckets.
func (s ChangeSet[F]) Validate() error {
	seen := make(map[string]string, s.Size())
	check := func(bucket string, facts []F) error {
		for _, f := range facts {
			key := f.FactKey()
			if prev, ok := seen[key]; ok {
				return fmt.Errorf("reconcile: fact %s present in both %s and %s buckets", key, prev, bucket)
			}
			seen[key] = bucket
		}
		return nil
	}
	if err := check("insert", s.Inserts); err != nil {
		return err
	}
	if err := check("update", s.Updates); err != nil {
		return err
	}
	return check("delete", s.Deletes)
}

// Merge unions another set into this one, preserving bucket order. The merged
// set is re-validated so the same row cannot be written twice; callers hitting
// that error must fall back to sequential per-item application.
func (s *ChangeSet[F]) Merge(other ChangeSet[F]) error {
	s.Inserts = append(s.Inserts, other.Inserts...)
	s.Updates = append(s.Updates, other.Updates...)
	s.Deletes = append(s.Deletes, other.Deletes...)
	return s.Validate()
}

// EntityKeys returns the distinct owning-entity keys touched by the set, in
// first-seen order.
func (s ChangeSet[F]) EntityKeys() []string {
	seen := make(map[string]struct{}, s.Size())
	keys := make([]string, 0, s.Size())
	for _, bucket := range [][]F{s.Inserts, s.Updates, s.Deletes} {
		for _, f := range bucket {
			key := f.EntityKey()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}

// HasDuplicateEntities reports whether any entity key appears more than once
// in the given request keys. Batches with repeated entities must be applied
// one item at a time so later items see the writes of earlier ones.
func HasDuplicateEntities(entityKeys []string) bool {
	seen := make(map[string]struct{}, len(entityKeys))
	for _, key := range entityKeys {
		if _, ok := seen[key]; ok {
			return true
		}
		seen[key] = struct{}{}
	}
	return false
}
