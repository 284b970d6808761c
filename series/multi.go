package series

import "github.com/cockroachdb/errors"

// ErrOverlappingAlignment is returned when appending a chunk whose alignment
// bounds do not start after the last chunk of a MultiSeries.
var ErrOverlappingAlignment = errors.New("series: chunk alignment overlaps previous chunk")

// MultiSeries is the ordered, alignment-disjoint list of chunks that make up
// one channel's buffered history.
type MultiSeries struct {
	Series []*Series
}

// Multi builds a MultiSeries from chunks, validating order.
func Multi(chunks ...*Series) (MultiSeries, error) {
	var ms MultiSeries
	for _, c := range chunks {
		if err := ms.Append(c); err != nil {
			return MultiSeries{}, err
		}
	}
	return ms, nil
}

// Append adds a chunk to the end of the MultiSeries. The chunk must start at
// or after the alignment upper bound of the current last chunk.
func (m *MultiSeries) Append(s *Series) error {
	if n := len(m.Series); n > 0 {
		last := m.Series[n-1].AlignmentBounds()
		if s.Alignment() < last.Upper {
			return ErrOverlappingAlignment
		}
	}
	m.Series = append(m.Series, s)
	return nil
}

// Len returns the total number of samples across all chunks.
func (m MultiSeries) Len() int {
	n := 0
	for _, s := range m.Series {
		n += s.Len()
	}
	return n
}

// Empty reports whether the MultiSeries holds no samples.
func (m MultiSeries) Empty() bool { return m.Len() == 0 }

// AlignmentBounds spans from the first chunk's lower bound to the last
// chunk's upper bound.
func (m MultiSeries) AlignmentBounds() AlignmentBounds {
	if len(m.Series) == 0 {
		return AlignmentBounds{}
	}
	return AlignmentBounds{
		Lower: m.Series[0].AlignmentBounds().Lower,
		Upper: m.Series[len(m.Series)-1].AlignmentBounds().Upper,
	}
}

// TimeRange returns the union of all chunk time ranges.
func (m MultiSeries) TimeRange() TimeRange {
	var tr TimeRange
	for _, s := range m.Series {
		tr = tr.Union(s.TimeRange())
	}
	return tr
}

// Bounds returns the union of all chunk value bounds.
func (m MultiSeries) Bounds() Bounds {
	b := EmptyBounds
	for _, s := range m.Series {
		b = b.Union(s.Bounds())
	}
	return b
}

// Keys returns the chunk identities in order. Comparing key slices is how
// consumers detect that a snapshot changed without comparing sample data.
func (m MultiSeries) Keys() []uint64 {
	keys := make([]uint64, len(m.Series))
	for i, s := range m.Series {
		keys[i] = s.Key()
	}
	return keys
}

// Downsample returns a MultiSeries where every chunk is downsampled by
// factor. A factor of one or less returns m.
func (m MultiSeries) Downsample(factor int) MultiSeries {
	if factor <= 1 {
		return m
	}
	out := MultiSeries{Series: make([]*Series, len(m.Series))}
	for i, s := range m.Series {
		out.Series[i] = s.Downsample(factor)
	}
	return out
}
