package series

import (
	"fmt"
	"math"
	"time"
)

// DataType tags the fixed-width numeric kind stored in a Series.
type DataType uint8

const (
	// Unknown is the zero DataType and is never valid for sample data.
	Unknown DataType = iota
	Float64
	Float32
	Int64
	Int32
	Int16
	Int8
	Uint64
	Uint32
	Uint16
	Uint8
	// Timestamp holds int64 nanoseconds since the Unix epoch.
	Timestamp
)

var dataTypeNames = [...]string{
	Unknown:   "unknown",
	Float64:   "float64",
	Float32:   "float32",
	Int64:     "int64",
	Int32:     "int32",
	Int16:     "int16",
	Int8:      "int8",
	Uint64:    "uint64",
	Uint32:    "uint32",
	Uint16:    "uint16",
	Uint8:     "uint8",
	Timestamp: "timestamp",
}

// String returns the lower-case name of the data type.
func (d DataType) String() string {
	if int(d) < len(dataTypeNames) {
		return dataTypeNames[d]
	}
	return fmt.Sprintf("DataType(%d)", uint8(d))
}

// Density returns the number of bytes occupied by one sample.
func (d DataType) Density() int {
	switch d {
	case Float64, Int64, Uint64, Timestamp:
		return 8
	case Float32, Int32, Uint32:
		return 4
	case Int16, Uint16:
		return 2
	case Int8, Uint8:
		return 1
	default:
		return 0
	}
}

// IsInteger reports whether samples are integers.
func (d DataType) IsInteger() bool {
	switch d {
	case Int64, Int32, Int16, Int8, Uint64, Uint32, Uint16, Uint8, Timestamp:
		return true
	default:
		return false
	}
}

// FitsInt32 reports whether every representable sample converts to int32
// without loss. Booleans are carried as Uint8.
func (d DataType) FitsInt32() bool {
	switch d {
	case Int32, Int16, Int8, Uint16, Uint8:
		return true
	default:
		return false
	}
}

// Sample is the set of Go types that can back a Series.
type Sample interface {
	~float64 | ~float32 | ~int64 | ~int32 | ~int16 | ~int8 | ~uint64 | ~uint32 | ~uint16 | ~uint8
}

// TimeStamp is a wall-clock instant in nanoseconds since the Unix epoch.
type TimeStamp int64

// Now returns the current time as a TimeStamp.
func Now() TimeStamp { return TimeStamp(time.Now().UnixNano()) }

// Add returns t shifted by d.
func (t TimeStamp) Add(d time.Duration) TimeStamp { return t + TimeStamp(d) }

// Sub returns the duration t-o.
func (t TimeStamp) Sub(o TimeStamp) time.Duration { return time.Duration(t - o) }

// TimeRange is the half-open interval [Start, End).
type TimeRange struct {
	Start TimeStamp `json:"start"`
	End   TimeStamp `json:"end"`
}

// Span returns the duration of the range.
func (r TimeRange) Span() time.Duration { return r.End.Sub(r.Start) }

// IsZero reports whether the range is the zero value.
func (r TimeRange) IsZero() bool { return r.Start == 0 && r.End == 0 }

// MakeValid returns r with Start and End swapped if End precedes Start.
func (r TimeRange) MakeValid() TimeRange {
	if r.End < r.Start {
		return TimeRange{Start: r.End, End: r.Start}
	}
	return r
}

// IsPoint reports whether the range has zero length.
func (r TimeRange) IsPoint() bool { return r.Start == r.End }

// ContainsStamp reports whether t lies in [Start, End).
func (r TimeRange) ContainsStamp(t TimeStamp) bool { return t >= r.Start && t < r.End }

// OverlapsWith reports whether r and o share at least tolerance of wall-clock
// time. Equal ranges always overlap, including equal points. Ranges that only
// touch at a boundary never overlap. A point range overlaps a wider range when
// the range contains it, regardless of tolerance.
func (r TimeRange) OverlapsWith(o TimeRange, tolerance time.Duration) bool {
	r, o = r.MakeValid(), o.MakeValid()
	if r == o {
		return true
	}
	if r.IsPoint() {
		return o.ContainsStamp(r.Start)
	}
	if o.IsPoint() {
		return r.ContainsStamp(o.Start)
	}
	if r.End == o.Start || o.End == r.Start {
		return false
	}
	start, end := max(r.Start, o.Start), min(r.End, o.End)
	if end <= start {
		return false
	}
	return end.Sub(start) >= tolerance
}

// Union returns the smallest range covering both r and o. A zero range is
// treated as empty.
func (r TimeRange) Union(o TimeRange) TimeRange {
	if r.IsZero() {
		return o
	}
	if o.IsZero() {
		return r
	}
	return TimeRange{Start: min(r.Start, o.Start), End: max(r.End, o.End)}
}

// Bounds is a closed numeric interval.
type Bounds struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// EmptyBounds is the identity for Union.
var EmptyBounds = Bounds{Lower: math.Inf(1), Upper: math.Inf(-1)}

// IsEmpty reports whether b contains no values.
func (b Bounds) IsEmpty() bool { return b.Lower > b.Upper }

// Span returns Upper-Lower, or zero for empty bounds.
func (b Bounds) Span() float64 {
	if b.IsEmpty() {
		return 0
	}
	return b.Upper - b.Lower
}

// Contains reports whether v lies within b.
func (b Bounds) Contains(v float64) bool { return v >= b.Lower && v <= b.Upper }

// Union returns the smallest bounds containing both b and o.
func (b Bounds) Union(o Bounds) Bounds {
	return Bounds{Lower: math.Min(b.Lower, o.Lower), Upper: math.Max(b.Upper, o.Upper)}
}

// AlignmentBounds is the half-open alignment interval [Lower, Upper).
type AlignmentBounds struct {
	Lower uint64
	Upper uint64
}

// IsZero reports whether the interval is empty.
func (a AlignmentBounds) IsZero() bool { return a.Upper <= a.Lower }

// Overlaps reports whether a and o share at least one alignment.
func (a AlignmentBounds) Overlaps(o AlignmentBounds) bool {
	return a.Lower < o.Upper && o.Lower < a.Upper
}
