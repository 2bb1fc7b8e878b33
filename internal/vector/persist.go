package vector

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Compression selects how an index file is written. Readers detect it automatically.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

const (
	fileVersion    uint32 = 1
	headerSize            = 4 + 4 + 4 + 4 + 8
	maxFileVectors        = 1 << 40
)

var (
	fileMagic = [4]byte{'K', 'N', 'J', 'V'}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

	// ErrCorruptIndex is returned when an index file cannot be decoded.
	ErrCorruptIndex = errors.New("corrupt index file")
)

// SaveOption configures Save.
type SaveOption func(*saveOptions)

type saveOptions struct {
	compression Compression
}

// WithCompression sets the on-disk compression.
func WithCompression(c Compression) SaveOption {
	return func(o *saveOptions) {
		o.compression = c
	}
}

// ParseCompression parses a compression name; empty means none.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("unknown compression: %s (supported: none, zstd)", s)
	}
}

// Save writes the index to path atomically: the data goes to a temporary file in the same
// directory which is renamed over path once fully written.
func (f *FlatIndex) Save(path string, opts ...SaveOption) error {
	o := saveOptions{compression: CompressionNone}
	for _, opt := range opts {
		opt(&o)
	}
	return writeAtomic(path, func(w io.Writer) error {
		return f.encode(w, o.compression)
	})
}

// WriteTo writes the uncompressed index encoding to w.
func (f *FlatIndex) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	err := f.encode(cw, CompressionNone)
	return cw.n, err
}

func (f *FlatIndex) encode(w io.Writer, c Compression) error {
	switch c {
	case CompressionNone, "":
		return f.encodeRaw(w)
	case CompressionZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("create zstd writer: %w", err)
		}
		if err := f.encodeRaw(enc); err != nil {
			_ = enc.Close()
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown compression: %s", c)
	}
}

// Format: magic (4), version (4), metric (4), dimension (4), count (8), then count*dimension
// little-endian float32 values in row order.
func (f *FlatIndex) encodeRaw(w io.Writer) error {
	bw := bufio.NewWriter(w)
	var hdr [headerSize]byte
	copy(hdr[0:4], fileMagic[:])
	binary.LittleEndian.PutUint32(hdr[4:8], fileVersion)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(f.metric))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(f.dimension))
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(f.count))
	if _, err := bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	var buf [4]byte
	for _, v := range f.data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("write vectors: %w", err)
		}
	}
	return bw.Flush()
}

// Load reads a FlatIndex written by Save. Plain and zstd-compressed files are both accepted.
func Load(path string) (*FlatIndex, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat index: %w", err)
	}
	idx, err := readIndex(file, (info.Size()-headerSize)/4)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return idx, nil
}

// ReadIndex decodes an index from r, transparently decompressing zstd input.
func ReadIndex(r io.Reader) (*FlatIndex, error) {
	return readIndex(r, -1)
}

// readIndex decodes an index. rawValues is the number of float32 values an uncompressed
// input can hold, or -1 when unknown; it does not apply to zstd input.
func readIndex(r io.Reader, rawValues int64) (*FlatIndex, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	if bytes.Equal(head, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		defer dec.Close()
		return decodeRaw(bufio.NewReader(dec), -1)
	}
	return decodeRaw(br, rawValues)
}

// readChunk bounds the up-front allocation; the vector slice grows as data actually arrives.
const readChunk = 1 << 16

func decodeRaw(r io.Reader, maxValues int64) (*FlatIndex, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrCorruptIndex, err)
	}
	if !bytes.Equal(hdr[0:4], fileMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptIndex)
	}
	if v := binary.LittleEndian.Uint32(hdr[4:8]); v != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, v)
	}
	metric := Metric(binary.LittleEndian.Uint32(hdr[8:12]))
	if !metric.valid() {
		return nil, fmt.Errorf("%w: unknown metric %d", ErrCorruptIndex, uint32(metric))
	}
	dim := uint64(binary.LittleEndian.Uint32(hdr[12:16]))
	count := binary.LittleEndian.Uint64(hdr[16:24])
	if count > maxFileVectors || (count > 0 && dim == 0) {
		return nil, fmt.Errorf("%w: bad shape %d x %d", ErrCorruptIndex, count, dim)
	}
	if dim > 0 && count > uint64(math.MaxInt)/dim {
		return nil, fmt.Errorf("%w: shape %d x %d overflows", ErrCorruptIndex, count, dim)
	}
	total := count * dim
	if maxValues >= 0 && total > uint64(maxValues) {
		return nil, fmt.Errorf("%w: shape %d x %d exceeds file size", ErrCorruptIndex, count, dim)
	}

	data := make([]float32, 0, min(total, readChunk))
	var buf [4]byte
	for i := uint64(0); i < total; i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: read vectors: %v", ErrCorruptIndex, err)
		}
		data = append(data, math.Float32frombits(binary.LittleEndian.Uint32(buf[:])))
	}
	return &FlatIndex{dimension: int(dim), metric: metric, count: int(count), data: data}, nil
}

// writeAtomic creates the parent directory, writes through fn to a temp file and renames it to path.
func writeAtomic(path string, fn func(io.Writer) error) error {
	if path == "" {
		return fmt.Errorf("index path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := fn(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename index: %w", err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
