package source

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/telem/series"
)

// StaticType is the source type of inline sample data.
const StaticType = "static"

// StaticProps describe an inline float64 chunk.
type StaticProps struct {
	Values    []float64        `json:"values"`
	Alignment uint64           `json:"alignment,omitempty"`
	Multiple  uint64           `json:"multiple,omitempty"`
	TimeRange series.TimeRange `json:"timeRange"`
}

// Static returns a Source that always yields ms and never changes.
func Static(ms series.MultiSeries) Source {
	return staticSource{data: ms}
}

// RegisterStatic registers StaticType, whose props are StaticProps.
func RegisterStatic(r *Registry) {
	r.Register(StaticType, func(raw json.RawMessage) (Source, error) {
		var p StaticProps
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errors.Wrap(err, "source: decode static props")
		}
		if len(p.Values) == 0 {
			return Static(series.MultiSeries{}), nil
		}
		s := series.New(p.Values,
			series.WithAlignment(p.Alignment),
			series.WithMultiple(p.Multiple),
			series.WithTimeRange(p.TimeRange),
		)
		return Static(series.MultiSeries{Series: []*series.Series{s}}), nil
	})
}

// StaticSpec returns the Spec of an inline source.
func StaticSpec(p StaticProps) Spec {
	raw, _ := json.Marshal(p)
	return Spec{Type: StaticType, Props: raw}
}

type staticSource struct {
	data series.MultiSeries
}

func (staticSource) OnChange(func()) func() { return func() {} }

func (s staticSource) Value() (series.Bounds, series.MultiSeries, error) {
	if s.data.Empty() {
		return series.EmptyBounds, s.data, nil
	}
	return s.data.Bounds(), s.data, nil
}

func (staticSource) Cleanup() error { return nil }
