// Package emmap decodes gzip-compressed CCP4/MRC electron-density maps
// as delivered by the EBI EMDB archive into an in-memory float32 grid
// with its crystallographic metadata.
//
// The decoder is streaming and resumable: chunks of any size are pushed
// as they arrive, and the inflater suspends at deflate block boundaries
// when it runs out of input, resuming exactly where it left off on the
// next push.
package emmap

import (
	"fmt"
	"hash/crc32"
	"io"
)

// Options configures a StreamDecoder.
type Options struct {
	// SkipChecksum disables verification of the gzip trailer CRC32 and
	// ISIZE against the decoded stream.
	SkipChecksum bool

	// ExpandSymmetry requests tiling of the asymmetric unit by the
	// symmetry operators. Not implemented: decoding a map that carries
	// symmetry records with this set fails explicitly rather than
	// returning a partial cell.
	ExpandSymmetry bool
}

// Decode states, advanced strictly in order.
const (
	stateGzipHeader = iota
	stateDeflateBody
	stateGzipTrailer
	stateAssemble
	stateDone
)

// StreamDecoder drives the full pipeline: gzip member framing, deflate
// inflation, and CCP4 map assembly. It is single-threaded cooperative:
// the caller pushes chunks and the decoder runs until it finishes or
// needs more input. A decoder is single-use.
type StreamDecoder struct {
	opts  Options
	src   *chunkBuffer
	infl  *inflator
	state int

	hdr    *GzipHeader
	crc    uint32
	hashed int // prefix of infl.out already fed to the CRC

	ccp4 *ccp4Header
	m    *DensityMap
	err  error
}

// NewStreamDecoder returns a decoder ready to accept chunks.
func NewStreamDecoder(opts Options) *StreamDecoder {
	src := &chunkBuffer{}
	return &StreamDecoder{
		opts: opts,
		src:  src,
		infl: newInflator(src),
	}
}

// Push appends a chunk and runs the decoder as far as the input allows.
// A nil error means either progress or a clean suspension; a non-nil
// error is fatal and sticky.
func (d *StreamDecoder) Push(chunk []byte) error {
	if d.err != nil {
		return d.err
	}
	d.src.append(chunk)
	return d.advance()
}

// CloseEnd latches end-of-stream and runs the decoder to completion.
// A stream that ends mid-structure surfaces ErrTruncated here.
func (d *StreamDecoder) CloseEnd() error {
	if d.err != nil {
		return d.err
	}
	d.src.closeEnd()
	if err := d.advance(); err != nil {
		return err
	}
	if d.state != stateDone {
		d.err = fmt.Errorf("stream closed in decode state %d: %w", d.state, ErrTruncated)
		return d.err
	}
	return nil
}

// Done reports whether the map has been fully decoded.
func (d *StreamDecoder) Done() bool { return d.state == stateDone }

// Header returns the gzip member header, available once the first bytes
// have been decoded, or nil.
func (d *StreamDecoder) Header() *GzipHeader { return d.hdr }

// Map returns the decoded DensityMap. It is an error to call before the
// decoder is done.
func (d *StreamDecoder) Map() (*DensityMap, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.state != stateDone {
		return nil, fmt.Errorf("decode incomplete: %w", ErrTruncated)
	}
	return d.m, nil
}

// advance runs the state machine until done or suspended. errNeedMore
// never escapes: a suspension is a nil return with state unchanged.
func (d *StreamDecoder) advance() error {
	for {
		var err error
		switch d.state {
		case stateGzipHeader:
			err = d.readHeader()
		case stateDeflateBody:
			err = d.inflateBody()
		case stateGzipTrailer:
			err = d.readTrailer()
		case stateAssemble:
			err = d.assemble()
		case stateDone:
			return nil
		}
		if err == errNeedMore {
			return nil
		}
		if err != nil {
			d.err = err
			return err
		}
	}
}

func (d *StreamDecoder) readHeader() error {
	cp := d.src.checkpoint()
	h, err := parseGzipHeader(d.src)
	if err != nil {
		if err == errNeedMore {
			if rerr := d.src.restore(cp); rerr != nil {
				return rerr
			}
		}
		return err
	}
	d.hdr = h
	d.state = stateDeflateBody
	return nil
}

func (d *StreamDecoder) inflateBody() error {
	err := d.infl.run()
	// infl.out only ever grows by whole blocks, so hashing and the early
	// header parse are safe even across suspensions.
	d.crc = crc32.Update(d.crc, crc32.IEEETable, d.infl.out[d.hashed:])
	d.hashed = len(d.infl.out)
	if d.ccp4 == nil && len(d.infl.out) >= ccp4HeaderBytes {
		h, herr := parseCcp4Header(d.infl.out)
		if herr != nil {
			return herr
		}
		d.ccp4 = h
	}
	if err != nil {
		return err
	}
	d.state = stateGzipTrailer
	return nil
}

func (d *StreamDecoder) readTrailer() error {
	srcCp := d.src.checkpoint()
	bitCp := d.infl.bits.checkpoint()
	tr, err := readGzipTrailer(d.infl.bits)
	if err != nil {
		if err == errNeedMore {
			if rerr := d.src.restore(srcCp); rerr != nil {
				return rerr
			}
			d.infl.bits.restore(bitCp)
		}
		return err
	}
	if !d.opts.SkipChecksum {
		if err := tr.verify(d.crc, len(d.infl.out)); err != nil {
			return err
		}
	}
	d.state = stateAssemble
	return nil
}

func (d *StreamDecoder) assemble() error {
	out := d.infl.out
	if d.ccp4 == nil {
		if len(out) < ccp4HeaderBytes {
			return fmt.Errorf("decoded stream is %d bytes, shorter than the CCP4 header: %w", len(out), ErrTruncated)
		}
		h, err := parseCcp4Header(out)
		if err != nil {
			return err
		}
		d.ccp4 = h
	}
	h := d.ccp4
	if int64(len(out)) != h.expectedTotal() {
		return fmt.Errorf("%w: decoded %d bytes, header implies %d (NSYMBT=%d, %d voxels × %d bytes)",
			ErrSizeMismatch, len(out), h.expectedTotal(), h.nsymbt, h.voxelCount(), h.bytesPerVoxel())
	}
	symEnd := ccp4HeaderBytes + h.nsymbt
	m, err := h.buildMap(out[ccp4HeaderBytes:symEnd], out[symEnd:], d.opts)
	if err != nil {
		return err
	}
	d.m = m
	d.state = stateDone
	return nil
}

// decodeChunkSize is how much DecodeMap reads from its source per push.
const decodeChunkSize = 64 << 10

// DecodeMap decodes a complete .map.gz stream from r. It is the
// convenience entry point for file and single-shot use; streaming
// callers drive a StreamDecoder directly.
func DecodeMap(r io.Reader, opts Options) (*DensityMap, error) {
	d := NewStreamDecoder(opts)
	buf := make([]byte, decodeChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if perr := d.Push(buf[:n]); perr != nil {
				return nil, perr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading source: %w", err)
		}
	}
	if err := d.CloseEnd(); err != nil {
		return nil, err
	}
	return d.Map()
}
