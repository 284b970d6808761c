package drawop

import (
	"math"
	"time"

	"github.com/gogpu/telem"
	"github.com/gogpu/telem/series"
)

// MaxDownsample is the largest downsample factor Compile will produce. It is
// a fixed performance ceiling, not a tunable.
const MaxDownsample = 51

// Mode selects how a line is decimated.
type Mode uint8

const (
	// ModeDecimate lets Compile pick a downsample factor from the exposure.
	ModeDecimate Mode = iota
	// ModeNone forces a factor of one. Use it for discrete or boolean
	// signals, where dropping samples would move edges.
	ModeNone
)

// String returns the mode name used in line state.
func (m Mode) String() string {
	switch m {
	case ModeDecimate:
		return "decimate"
	case ModeNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseMode converts a mode name. Unknown and empty names map to
// ModeDecimate.
func ParseMode(s string) Mode {
	if s == "none" {
		return ModeNone
	}
	return ModeDecimate
}

// Operation describes one draw call over an overlapping x/y chunk pair.
type Operation struct {
	X, Y *series.Series

	// XOffset and YOffset are the number of samples to skip at the start of
	// each chunk so that both sides begin at the same alignment.
	XOffset, YOffset int

	// Count is the number of samples both sides share from the offsets.
	Count int

	// Downsample is the stride between drawn samples, in [1, MaxDownsample].
	Downsample int
}

// VertexCount returns the number of vertices drawn after decimation.
func (o Operation) VertexCount() int {
	if o.Downsample <= 1 {
		return o.Count
	}
	return (o.Count + o.Downsample - 1) / o.Downsample
}

// Params controls a compile pass.
type Params struct {
	// Exposure is a level-of-detail scalar; higher values mean more samples
	// per pixel and more aggressive decimation.
	Exposure float64

	// MinDownsample is the lower bound for the downsample factor. Values
	// below one are treated as one.
	MinDownsample int

	Mode Mode

	// OverlapThreshold is the minimum wall-clock overlap two chunks must
	// share. It rejects the slivers of overlap produced by live buffering.
	OverlapThreshold time.Duration
}

// Compile produces one Operation per overlapping (x chunk, y chunk) pair.
// Pairs whose alignment multiples differ are skipped with a warning; pairs
// with no shared samples are dropped. Empty input on either side yields an
// empty result.
func Compile(x, y series.MultiSeries, p Params) []Operation {
	if x.Empty() || y.Empty() {
		return nil
	}
	var ops []Operation
	for _, xs := range x.Series {
		for _, ys := range y.Series {
			if xs.Len() == 0 || ys.Len() == 0 {
				continue
			}
			if xs.AlignmentMultiple() != ys.AlignmentMultiple() {
				telem.Logger().Warn("drawop: skipping chunk pair with mismatched alignment multiples",
					"x_key", xs.Key(), "x_multiple", xs.AlignmentMultiple(),
					"y_key", ys.Key(), "y_multiple", ys.AlignmentMultiple())
				continue
			}
			if !xs.TimeRange().OverlapsWith(ys.TimeRange(), p.OverlapThreshold) {
				continue
			}
			op, ok := pair(xs, ys)
			if !ok {
				continue
			}
			op.Downsample = DownsampleFactor(p.Exposure, op.Count, p.MinDownsample, p.Mode)
			ops = append(ops, op)
		}
	}
	return ops
}

// pair aligns two chunks with equal multiples.
func pair(xs, ys *series.Series) (Operation, bool) {
	xb, yb := xs.AlignmentBounds(), ys.AlignmentBounds()
	if !xb.Overlaps(yb) {
		return Operation{}, false
	}
	start := max(xb.Lower, yb.Lower)
	end := min(xb.Upper, yb.Upper)
	xm, ym := xs.AlignmentMultiple(), ys.AlignmentMultiple()

	op := Operation{X: xs, Y: ys}
	if xb.Lower < start {
		op.XOffset = int((start - xb.Lower) / xm)
	}
	if yb.Lower < start {
		op.YOffset = int((start - yb.Lower) / ym)
	}
	op.Count = int(min((end-start)/xm, (end-start)/ym))
	// Integer division on the offset side can leave fewer samples than the
	// span suggests when the chunks are out of phase.
	op.Count = min(op.Count, xs.Len()-op.XOffset, ys.Len()-op.YOffset)
	if op.Count <= 0 {
		return Operation{}, false
	}
	return op, true
}

// DownsampleFactor returns clamp(round(exposure*4*count), max(min, 1),
// MaxDownsample), or one when mode is ModeNone.
func DownsampleFactor(exposure float64, count, minFactor int, mode Mode) int {
	if mode == ModeNone {
		return 1
	}
	lo := max(minFactor, 1)
	if lo > MaxDownsample {
		lo = MaxDownsample
	}
	f := math.Round(exposure * 4 * float64(count))
	switch {
	case math.IsNaN(f) || f < float64(lo):
		return lo
	case f > MaxDownsample:
		return MaxDownsample
	default:
		return int(f)
	}
}
