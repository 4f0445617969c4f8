package compliance

// orderedSet is a string set that remembers insertion order so renders stay
// deterministic across applies.
type orderedSet struct {
	items []string
	index map[string]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[string]struct{})}
}

func (s *orderedSet) Add(v string) {
	if _, ok := s.index[v]; ok {
		return
	}
	s.index[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *orderedSet) Remove(v string) {
	if _, ok := s.index[v]; !ok {
		return
	}
	delete(s.index, v)
	for i, item := range s.items {
		if item == v {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
}

func (s *orderedSet) Has(v string) bool {
	_, ok := s.index[v]
	return ok
}

func (s *orderedSet) Len() int { return len(s.items) }

func (s *orderedSet) Items() []string {
	return append([]string(nil), s.items...)
}

func (s *orderedSet) Clear() {
	s.items = nil
	s.index = make(map[string]struct{})
}

// Store holds the per-session alert accumulators. Critical and risk grow by
// union and never shrink; pending entries leave only when the same string
// shows up in completed_steps; completed is replaced wholesale each apply.
type Store struct {
	critical  *orderedSet
	risk      *orderedSet
	pending   *orderedSet
	completed []string
}

func NewStore() *Store {
	return &Store{
		critical: newOrderedSet(),
		risk:     newOrderedSet(),
		pending:  newOrderedSet(),
	}
}

func (s *Store) Critical() []string  { return s.critical.Items() }
func (s *Store) Risk() []string      { return s.risk.Items() }
func (s *Store) Pending() []string   { return s.pending.Items() }
func (s *Store) Completed() []string { return append([]string(nil), s.completed...) }

func (s *Store) reset() {
	s.critical.Clear()
	s.risk.Clear()
	s.pending.Clear()
	s.completed = nil
}
