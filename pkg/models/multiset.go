package models

// Multiset is the per-peer element container. Insertion order is preserved
// for deterministic iteration; a secondary index keeps per-element
// multiplicity for the multiset protocols.
type Multiset struct {
	order []*DataObject
	count map[string]int
}

func NewMultiset() *Multiset {
	return &Multiset{count: make(map[string]int)}
}

// Add inserts one occurrence of d. It returns true if d was not present
// before (a newly accepted distinct element).
func (m *Multiset) Add(d *DataObject) bool {
	k := d.Key()
	prev := m.count[k]
	m.count[k] = prev + 1
	if prev == 0 {
		m.order = append(m.order, d)
		return true
	}
	return false
}

// Remove deletes one occurrence of d. It returns false when d is absent.
func (m *Multiset) Remove(d *DataObject) bool {
	k := d.Key()
	prev := m.count[k]
	if prev == 0 {
		return false
	}
	if prev == 1 {
		delete(m.count, k)
		for i, e := range m.order {
			if e.Key() == k {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	} else {
		m.count[k] = prev - 1
	}
	return true
}

// Multiplicity returns the occurrence count of d.
func (m *Multiset) Multiplicity(d *DataObject) int {
	return m.count[d.Key()]
}

// Contains reports whether at least one occurrence of d is present.
func (m *Multiset) Contains(d *DataObject) bool {
	return m.count[d.Key()] > 0
}

// Elements returns the distinct elements in insertion order. The returned
// slice is shared; callers must not mutate it.
func (m *Multiset) Elements() []*DataObject {
	return m.order
}

// Size returns the number of distinct elements.
func (m *Multiset) Size() int {
	return len(m.order)
}

// TotalSize returns the number of elements counted with multiplicity.
func (m *Multiset) TotalSize() int {
	n := 0
	for _, c := range m.count {
		n += c
	}
	return n
}
