package wire

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"

	"github.com/gogpu/telem"
	"github.com/gogpu/telem/tree"
)

const (
	// DefaultCompressThreshold is the envelope size above which payloads
	// are compressed.
	DefaultCompressThreshold = 1024

	// MaxFrameSize bounds the payload a Decoder accepts.
	MaxFrameSize = 16 << 20

	headerSize     = 5
	flagCompressed = 1 << 0
)

var (
	// ErrFrameTooLarge is returned for frames above MaxFrameSize.
	ErrFrameTooLarge = errors.New("wire: frame too large")

	// ErrBadFrame is returned for frames with unknown flags.
	ErrBadFrame = errors.New("wire: malformed frame")
)

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

// WithCompressThreshold sets the envelope size above which payloads are
// compressed. A negative threshold disables compression.
func WithCompressThreshold(n int) EncoderOption {
	return func(e *Encoder) { e.threshold = n }
}

// Encoder writes framed messages. It is not safe for concurrent use.
type Encoder struct {
	w         io.Writer
	zenc      *zstd.Encoder
	threshold int
	header    [headerSize]byte
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer, opts ...EncoderOption) (*Encoder, error) {
	e := &Encoder{w: w, threshold: DefaultCompressThreshold}
	for _, opt := range opts {
		opt(e)
	}
	if e.threshold >= 0 {
		zenc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, errors.Wrap(err, "wire: create zstd encoder")
		}
		e.zenc = zenc
	}
	return e, nil
}

// Encode writes one framed message.
func (e *Encoder) Encode(m tree.Message) error {
	payload, err := Marshal(m)
	if err != nil {
		return err
	}
	var flags byte
	if e.zenc != nil && len(payload) > e.threshold {
		raw := len(payload)
		payload = e.zenc.EncodeAll(payload, make([]byte, 0, raw/2))
		flags |= flagCompressed
		telem.Logger().Debug("wire: compressed envelope",
			"path", tree.JoinPath(m.Target()), "raw", humanize.IBytes(uint64(raw)), "compressed", humanize.IBytes(uint64(len(payload))))
	}
	if len(payload) > MaxFrameSize {
		return errors.Wrapf(ErrFrameTooLarge, "%s", humanize.IBytes(uint64(len(payload))))
	}
	binary.BigEndian.PutUint32(e.header[:4], uint32(len(payload)))
	e.header[4] = flags
	if _, err := e.w.Write(e.header[:]); err != nil {
		return errors.Wrap(err, "wire: write header")
	}
	if _, err := e.w.Write(payload); err != nil {
		return errors.Wrap(err, "wire: write payload")
	}
	return nil
}

// Close releases the compressor. It does not close the writer.
func (e *Encoder) Close() error {
	if e.zenc != nil {
		return e.zenc.Close()
	}
	return nil
}

// Decoder reads framed messages. It is not safe for concurrent use.
type Decoder struct {
	r      io.Reader
	zdec   *zstd.Decoder
	header [headerSize]byte
	buf    []byte
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) (*Decoder, error) {
	zdec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "wire: create zstd decoder")
	}
	return &Decoder{r: r, zdec: zdec}, nil
}

// Decode reads the next message. It returns io.EOF at a clean end of
// stream and io.ErrUnexpectedEOF when the stream ends inside a frame.
func (d *Decoder) Decode() (tree.Message, error) {
	if _, err := io.ReadFull(d.r, d.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "wire: read header")
	}
	n := binary.BigEndian.Uint32(d.header[:4])
	flags := d.header[4]
	if n > MaxFrameSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%s", humanize.IBytes(uint64(n)))
	}
	if flags&^flagCompressed != 0 {
		return nil, errors.Wrapf(ErrBadFrame, "flags %#x", flags)
	}
	if cap(d.buf) < int(n) {
		d.buf = make([]byte, n)
	}
	payload := d.buf[:n]
	if _, err := io.ReadFull(d.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrap(err, "wire: read payload")
	}
	if flags&flagCompressed != 0 {
		raw, err := d.zdec.DecodeAll(payload, nil)
		if err != nil {
			return nil, errors.Wrap(err, "wire: decompress payload")
		}
		payload = raw
	}
	return Unmarshal(payload)
}

// Close releases the decompressor. It does not close the reader.
func (d *Decoder) Close() {
	d.zdec.Close()
}

// Pump decodes messages from dec into out until the stream ends, ctx is
// done or a frame fails to decode. It returns nil at a clean end of stream.
// Pump does not close out.
func Pump(ctx context.Context, dec *Decoder, out chan<- tree.Message) error {
	for {
		m, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
