package orderbook

// sideIndex orders the active price levels of one book side. "Best" is the
// highest price for bids and the lowest for asks; walking "outward" moves
// away from the best toward worse prices for that side.
type sideIndex struct {
	side Side
	tree *rbTree
}

func newSideIndex(side Side) *sideIndex {
	return &sideIndex{side: side, tree: newRBTree()}
}

func (s *sideIndex) best() *level {
	if s.side == Buy {
		return s.tree.max()
	}
	return s.tree.min()
}

// past returns the first level strictly worse than price for this side.
func (s *sideIndex) past(price int64) *level {
	if s.side == Buy {
		return s.tree.below(price)
	}
	return s.tree.above(price)
}

func (s *sideIndex) find(price int64) *level {
	return s.tree.find(price)
}

func (s *sideIndex) upsert(price int64) *level {
	return s.tree.upsert(price)
}

func (s *sideIndex) drop(price int64) {
	s.tree.delete(price)
}

func (s *sideIndex) levels() int {
	return s.tree.len()
}

// walkOut visits levels from the best outward until fn returns false.
func (s *sideIndex) walkOut(fn func(*level) bool) {
	if s.side == Buy {
		s.tree.descend(fn)
		return
	}
	s.tree.ascend(fn)
}

// nextLevels collects up to count levels strictly past fromPrice, walking
// outward in strict price order. Used by depth queries.
func (s *sideIndex) nextLevels(fromPrice int64, count int) []*level {
	out := make([]*level, 0, count)
	for lvl := s.past(fromPrice); lvl != nil && len(out) < count; lvl = s.past(lvl.price) {
		out = append(out, lvl)
	}
	return out
}
