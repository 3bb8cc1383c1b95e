package cache

// store owns the resident entries. Each tier has its own map so an entry
// can only ever live in one of them. Callers hold Cache.mu.
type store struct {
	tiers      map[Tier]map[string]*Entry
	tierBytes  map[Tier]int64
	totalBytes int64
}

func newStore() *store {
	return &store{
		tiers: map[Tier]map[string]*Entry{
			TierHot:  make(map[string]*Entry),
			TierCold: make(map[string]*Entry),
		},
		tierBytes: map[Tier]int64{TierHot: 0, TierCold: 0},
	}
}

// lookup checks the hot tier before the cold one.
func (s *store) lookup(key string) (*Entry, bool) {
	if e, ok := s.tiers[TierHot][key]; ok {
		return e, true
	}
	e, ok := s.tiers[TierCold][key]
	return e, ok
}

func (s *store) insert(e *Entry) {
	s.tiers[e.Tier][e.Key] = e
	s.tierBytes[e.Tier] += e.SizeBytes
	s.totalBytes += e.SizeBytes
}

// remove deletes key from whichever tier holds it. Byte counters are
// clamped at zero.
func (s *store) remove(key string) (*Entry, bool) {
	e, ok := s.lookup(key)
	if !ok {
		return nil, false
	}
	delete(s.tiers[e.Tier], key)
	s.tierBytes[e.Tier] = clampZero(s.tierBytes[e.Tier] - e.SizeBytes)
	s.totalBytes = clampZero(s.totalBytes - e.SizeBytes)
	return e, true
}

// move relocates an entry to another tier.
func (s *store) move(e *Entry, to Tier) {
	if e.Tier == to {
		return
	}
	delete(s.tiers[e.Tier], e.Key)
	s.tierBytes[e.Tier] = clampZero(s.tierBytes[e.Tier] - e.SizeBytes)
	e.Tier = to
	s.tiers[to][e.Key] = e
	s.tierBytes[to] += e.SizeBytes
}

func (s *store) len() int {
	return len(s.tiers[TierHot]) + len(s.tiers[TierCold])
}

// each calls fn for every resident entry until fn returns false.
func (s *store) each(fn func(*Entry) bool) {
	for _, t := range []Tier{TierHot, TierCold} {
		for _, e := range s.tiers[t] {
			if !fn(e) {
				return
			}
		}
	}
}

func (s *store) reset() int {
	n := s.len()
	s.tiers[TierHot] = make(map[string]*Entry)
	s.tiers[TierCold] = make(map[string]*Entry)
	s.tierBytes[TierHot] = 0
	s.tierBytes[TierCold] = 0
	s.totalBytes = 0
	return n
}

func clampZero(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
