package emmap

import "errors"

// Fatal decode errors. All are terminal: the decoder never retries on its
// own. Callers can test categories with errors.Is.
var (
	// ErrTruncated means the input stream ended before all required
	// bytes or bits were available.
	ErrTruncated = errors.New("emmap: truncated stream")

	// ErrInvalidGzipSignature means the first two bytes were not 0x1F 0x8B.
	ErrInvalidGzipSignature = errors.New("emmap: invalid gzip signature")

	// ErrUnsupportedCompressionMethod means the gzip CM byte was not 8 (DEFLATE).
	ErrUnsupportedCompressionMethod = errors.New("emmap: unsupported gzip compression method")

	// ErrInvalidDeflateBlock covers reserved BTYPE=3, stored-block
	// LEN/NLEN mismatch, and impossible code-length series.
	ErrInvalidDeflateBlock = errors.New("emmap: invalid deflate block")

	// ErrInvalidHuffmanSymbol means a decoded symbol is outside its
	// alphabet (length symbol > 285, distance symbol > 29).
	ErrInvalidHuffmanSymbol = errors.New("emmap: invalid huffman symbol")

	// ErrBadChecksum means the gzip trailer CRC32 does not match the
	// decoded bytes.
	ErrBadChecksum = errors.New("emmap: gzip checksum mismatch")

	// ErrBadSize means the gzip trailer ISIZE does not match the decoded
	// length modulo 2^32.
	ErrBadSize = errors.New("emmap: gzip size mismatch")

	// ErrBadCcp4Magic means header word 52 was not "MAP ".
	ErrBadCcp4Magic = errors.New("emmap: bad CCP4 magic")

	// ErrUnsupportedMode means the CCP4 MODE word was neither 0 nor 2.
	ErrUnsupportedMode = errors.New("emmap: unsupported CCP4 mode")

	// ErrSizeMismatch means the decoded stream length does not equal
	// 1024 + NSYMBT + bytesPerVoxel*NC*NR*NS, or the header's grid
	// description is unusable: an axis size outside the sanity limits,
	// too many voxels, MAPC/MAPR/MAPS not a permutation of 1..3, or a
	// non-finite scalar statistic.
	ErrSizeMismatch = errors.New("emmap: CCP4 size mismatch")

	// ErrSymmetryMisalignment means NSYMBT is negative, not a multiple of
	// 4, or above the size cap, or the symmetry block is not a whole
	// number of 80-byte records.
	ErrSymmetryMisalignment = errors.New("emmap: CCP4 symmetry block misaligned")

	// ErrBadSymmetryOperator means a symmetry record could not be parsed.
	ErrBadSymmetryOperator = errors.New("emmap: bad symmetry operator")

	// ErrSymmetryExpansion is returned when Options.ExpandSymmetry is set
	// and the map carries symmetry records; expansion is not implemented.
	ErrSymmetryExpansion = errors.New("emmap: symmetry expansion not supported")
)

// errNeedMore is the recoverable underflow signal: the stream is still
// open and the current operation can be retried once more bytes arrive.
// It never escapes the package; StreamDecoder.Push absorbs it.
var errNeedMore = errors.New("emmap: need more input")
