// Package wire carries tree messages across a byte stream, for control and
// render sides that do not share a process.
//
// Each message is a JSON envelope:
//
//	{"variant": "update", "path": ["plot", "l1"], "kind": "create", "type": "line", "state": {...}}
//	{"variant": "delete", "path": ["plot", "l1"]}
//
// On a stream every envelope is framed as
//
//	length  uint32, big endian, of the payload
//	flags   1 byte; bit 0 set means the payload is zstd-compressed
//	payload length bytes
//
// Envelopes larger than the encoder's compression threshold are compressed.
package wire
