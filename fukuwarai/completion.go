package fukuwarai

// CompleteSet reports whether a placement list fills the whole category
// set. Pure derivation: no hidden state.
func CompleteSet(placements []Placement) bool {
	seen := make(map[PartType]struct{}, PartTypeCount)
	for _, p := range placements {
		if p.PartType.Valid() {
			seen[p.PartType] = struct{}{}
		}
	}
	return len(seen) == PartTypeCount
}

// Complete reports whether the session's committed placements fill all
// categories. Recomputed from fold state, never cached across folds.
func (s *Session) Complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filled) == PartTypeCount
}

// MissingCategories lists unfilled categories in canonical order.
func (s *Session) MissingCategories() []PartType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.missingLocked()
}

func (s *Session) missingLocked() []PartType {
	var missing []PartType
	for _, pt := range AllPartTypes() {
		if _, ok := s.filled[pt]; !ok {
			missing = append(missing, pt)
		}
	}
	return missing
}
