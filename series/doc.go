// Package series defines the immutable sample chunks consumed by the
// rendering pipeline.
//
// A [Series] is one contiguous run of samples for a channel. Every sample has
// an alignment: a global, monotonically increasing sample index that lets
// chunks of independently clocked channels be compared without relying on
// wall-clock time. A [MultiSeries] is the ordered, alignment-disjoint list of
// chunks that make up one channel's buffered history.
//
// Series are read-only once exposed. Operations such as [Series.Downsample]
// return new chunks with new identities.
package series
