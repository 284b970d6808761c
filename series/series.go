package series

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// nextKey hands out process-unique chunk identities.
var nextKey atomic.Uint64

// Series is an immutable, fixed-capacity chunk of samples.
//
// The alignment of sample i is Alignment + i*AlignmentMultiple. The multiple
// is greater than one when the chunk was itself produced by downsampling a
// higher-rate channel.
type Series struct {
	key       uint64
	dataType  DataType
	data      []byte
	alignment uint64
	multiple  uint64
	timeRange TimeRange

	boundsOnce sync.Once
	bounds     Bounds
}

// Option configures a Series at construction.
type Option func(*Series)

// WithAlignment sets the alignment of the first sample.
func WithAlignment(a uint64) Option {
	return func(s *Series) { s.alignment = a }
}

// WithMultiple sets the alignment stride between consecutive samples.
// Zero is normalized to one.
func WithMultiple(m uint64) Option {
	return func(s *Series) { s.multiple = m }
}

// WithTimeRange sets the wall-clock range covered by the chunk.
func WithTimeRange(tr TimeRange) Option {
	return func(s *Series) { s.timeRange = tr }
}

// New creates a Series from values. The data type is inferred from T;
// TimeStamp values produce a Timestamp series.
func New[T Sample](values []T, opts ...Option) *Series {
	var zero T
	dt := inferDataType(any(zero))
	density := dt.Density()
	data := make([]byte, len(values)*density)
	for i, v := range values {
		putSample(data[i*density:], dt, any(v))
	}
	return newSeries(dt, data, opts...)
}

// FromBytes creates a Series over raw little-endian sample data. The slice is
// retained; callers must not modify it afterwards.
func FromBytes(dt DataType, data []byte, opts ...Option) (*Series, error) {
	density := dt.Density()
	if density == 0 {
		return nil, errors.Newf("series: unsupported data type %s", dt)
	}
	if len(data)%density != 0 {
		return nil, errors.Newf("series: %d bytes is not a multiple of %s density %d", len(data), dt, density)
	}
	return newSeries(dt, data, opts...), nil
}

func newSeries(dt DataType, data []byte, opts ...Option) *Series {
	s := &Series{
		key:      nextKey.Add(1),
		dataType: dt,
		data:     data,
		multiple: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.multiple == 0 {
		s.multiple = 1
	}
	return s
}

func inferDataType(v any) DataType {
	switch v.(type) {
	case TimeStamp:
		return Timestamp
	case float64:
		return Float64
	case float32:
		return Float32
	case int64:
		return Int64
	case int32:
		return Int32
	case int16:
		return Int16
	case int8:
		return Int8
	case uint64:
		return Uint64
	case uint32:
		return Uint32
	case uint16:
		return Uint16
	case uint8:
		return Uint8
	default:
		return Unknown
	}
}

func putSample(b []byte, dt DataType, v any) {
	switch dt {
	case Timestamp:
		binary.LittleEndian.PutUint64(b, uint64(v.(TimeStamp)))
	case Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.(float64)))
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(v.(float32)))
	case Int64:
		binary.LittleEndian.PutUint64(b, uint64(v.(int64)))
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(v.(int32)))
	case Int16:
		binary.LittleEndian.PutUint16(b, uint16(v.(int16)))
	case Int8:
		b[0] = byte(v.(int8))
	case Uint64:
		binary.LittleEndian.PutUint64(b, v.(uint64))
	case Uint32:
		binary.LittleEndian.PutUint32(b, v.(uint32))
	case Uint16:
		binary.LittleEndian.PutUint16(b, v.(uint16))
	case Uint8:
		b[0] = v.(uint8)
	}
}

// Key returns the process-unique identity of the chunk. Two snapshots that
// hold the same keys hold the same data.
func (s *Series) Key() uint64 { return s.key }

// DataType returns the sample type.
func (s *Series) DataType() DataType { return s.dataType }

// Len returns the number of samples.
func (s *Series) Len() int {
	d := s.dataType.Density()
	if d == 0 {
		return 0
	}
	return len(s.data) / d
}

// Alignment returns the alignment of the first sample.
func (s *Series) Alignment() uint64 { return s.alignment }

// AlignmentMultiple returns the alignment stride between samples.
func (s *Series) AlignmentMultiple() uint64 { return s.multiple }

// TimeRange returns the wall-clock range of the chunk.
func (s *Series) TimeRange() TimeRange { return s.timeRange }

// AlignmentBounds returns [Alignment, Alignment + Len*AlignmentMultiple).
func (s *Series) AlignmentBounds() AlignmentBounds {
	return AlignmentBounds{
		Lower: s.alignment,
		Upper: s.alignment + uint64(s.Len())*s.multiple,
	}
}

// Data returns the raw little-endian sample bytes. The slice must not be
// modified.
func (s *Series) Data() []byte { return s.data }

// Float64At returns sample i converted to float64.
func (s *Series) Float64At(i int) float64 {
	d := s.dataType.Density()
	b := s.data[i*d:]
	switch s.dataType {
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Int64, Timestamp:
		return float64(int64(binary.LittleEndian.Uint64(b)))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case Int8:
		return float64(int8(b[0]))
	case Uint64:
		return float64(binary.LittleEndian.Uint64(b))
	case Uint32:
		return float64(binary.LittleEndian.Uint32(b))
	case Uint16:
		return float64(binary.LittleEndian.Uint16(b))
	case Uint8:
		return float64(b[0])
	default:
		return math.NaN()
	}
}

// int64At returns sample i for integer types without a float round trip.
func (s *Series) int64At(i int) int64 {
	d := s.dataType.Density()
	b := s.data[i*d:]
	switch s.dataType {
	case Int64, Timestamp, Uint64:
		return int64(binary.LittleEndian.Uint64(b))
	case Int32:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case Uint32:
		return int64(binary.LittleEndian.Uint32(b))
	case Int16:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case Uint16:
		return int64(binary.LittleEndian.Uint16(b))
	case Int8:
		return int64(int8(b[0]))
	case Uint8:
		return int64(b[0])
	default:
		return int64(s.Float64At(i))
	}
}

// Float32s returns every sample minus base as float32. Subtracting a base
// close to the data keeps nanosecond timestamps and other large magnitudes
// representable at float32 precision.
func (s *Series) Float32s(base float64) []float32 {
	n := s.Len()
	out := make([]float32, n)
	if s.dataType.IsInteger() {
		ib := int64(base)
		frac := base - float64(ib)
		for i := 0; i < n; i++ {
			out[i] = float32(float64(s.int64At(i)-ib) - frac)
		}
		return out
	}
	for i := 0; i < n; i++ {
		out[i] = float32(s.Float64At(i) - base)
	}
	return out
}

// Int32s returns every sample as int32. It is only lossless for data types
// where FitsInt32 reports true.
func (s *Series) Int32s() []int32 {
	n := s.Len()
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		out[i] = int32(s.int64At(i))
	}
	return out
}

// Bounds returns the minimum and maximum sample values. An empty series
// returns EmptyBounds.
func (s *Series) Bounds() Bounds {
	s.boundsOnce.Do(func() {
		b := EmptyBounds
		for i, n := 0, s.Len(); i < n; i++ {
			v := s.Float64At(i)
			if math.IsNaN(v) {
				continue
			}
			if v < b.Lower {
				b.Lower = v
			}
			if v > b.Upper {
				b.Upper = v
			}
		}
		s.bounds = b
	})
	return s.bounds
}

// Downsample keeps every factor-th sample starting with the first. The result
// keeps the alignment and time range of s and multiplies the alignment
// multiple by factor, so alignment arithmetic across chunks stays valid.
// A factor of one or less returns s.
func (s *Series) Downsample(factor int) *Series {
	if factor <= 1 || s.Len() == 0 {
		return s
	}
	d := s.dataType.Density()
	n := (s.Len() + factor - 1) / factor
	data := make([]byte, 0, n*d)
	for i := 0; i < s.Len(); i += factor {
		data = append(data, s.data[i*d:(i+1)*d]...)
	}
	return newSeries(s.dataType, data,
		WithAlignment(s.alignment),
		WithMultiple(s.multiple*uint64(factor)),
		WithTimeRange(s.timeRange),
	)
}

// String returns a short description of the chunk for logs.
func (s *Series) String() string {
	ab := s.AlignmentBounds()
	return fmt.Sprintf("Series{key: %d, DataType: %s, len: %d, alignment: [%d, %d) x%d}",
		s.key, s.dataType, s.Len(), ab.Lower, ab.Upper, s.multiple)
}
