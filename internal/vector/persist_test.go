package vector

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatIndex_SaveLoad(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			vecs := randomVectors(40, 12, 7)
			idx, err := Build(vecs, 12, MetricInnerProduct)
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "nested", "index.bin")
			require.NoError(t, idx.Save(path, WithCompression(c)))

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			if c == CompressionZstd {
				assert.True(t, bytes.HasPrefix(raw, zstdMagic))
			} else {
				assert.True(t, bytes.HasPrefix(raw, fileMagic[:]))
			}

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, idx.Size(), loaded.Size())
			assert.Equal(t, idx.Dimension(), loaded.Dimension())
			assert.Equal(t, MetricInnerProduct, loaded.Metric())
			assert.Equal(t, idx.data, loaded.data)

			ctx := context.Background()
			for _, q := range vecs[:5] {
				want, err := idx.Search(ctx, q, 6)
				require.NoError(t, err)
				got, err := loaded.Search(ctx, q, 6)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestFlatIndex_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	idx, err := Build([][]float32{{1, 2}}, 2, MetricL2)
	require.NoError(t, err)
	require.NoError(t, idx.Save(filepath.Join(dir, "index.bin")))
	require.NoError(t, idx.Save(filepath.Join(dir, "index.bin")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "index.bin", entries[0].Name())
}

func TestFlatIndex_SaveLoadEmpty(t *testing.T) {
	idx, err := Build(nil, 5, MetricL2)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, idx.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Size())
	assert.Equal(t, 5, loaded.Dimension())
}

func TestWriteToReadIndex(t *testing.T) {
	idx, err := Build([][]float32{{1, 2, 3}, {4, 5, 6}}, 3, MetricL2)
	require.NoError(t, err)
	var buf bytes.Buffer
	n, err := idx.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(headerSize+6*4), n)

	loaded, err := ReadIndex(&buf)
	require.NoError(t, err)
	assert.Equal(t, idx.data, loaded.data)
}

func TestLoad_Corrupt(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.bin")
	require.NoError(t, os.WriteFile(bad, []byte("not an index file at all, really"), 0644))
	_, err := Load(bad)
	assert.ErrorIs(t, err, ErrCorruptIndex)

	idx, _ := Build([][]float32{{1, 2}, {3, 4}}, 2, MetricL2)
	var buf bytes.Buffer
	_, err = idx.WriteTo(&buf)
	require.NoError(t, err)
	truncated := filepath.Join(dir, "truncated.bin")
	require.NoError(t, os.WriteFile(truncated, buf.Bytes()[:buf.Len()-3], 0644))
	_, err = Load(truncated)
	assert.ErrorIs(t, err, ErrCorruptIndex)

	_, err = Load(filepath.Join(dir, "missing.bin"))
	assert.Error(t, err)
}

func rawHeader(dim uint32, count uint64) []byte {
	hdr := make([]byte, headerSize)
	copy(hdr[0:4], fileMagic[:])
	binary.LittleEndian.PutUint32(hdr[4:8], fileVersion)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(MetricL2))
	binary.LittleEndian.PutUint32(hdr[12:16], dim)
	binary.LittleEndian.PutUint64(hdr[16:24], count)
	return hdr
}

func TestLoad_ImplausibleShape(t *testing.T) {
	tests := []struct {
		name  string
		dim   uint32
		count uint64
	}{
		{"huge", 1 << 16, 1 << 40},
		{"overflow", math.MaxUint32, 1 << 40},
		{"too many", 2, maxFileVectors + 1},
		{"no dimension", 0, 3},
		{"one past payload", 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hdr := rawHeader(tt.dim, tt.count)

			_, err := ReadIndex(bytes.NewReader(hdr))
			assert.ErrorIs(t, err, ErrCorruptIndex)

			path := filepath.Join(t.TempDir(), "index.bin")
			require.NoError(t, os.WriteFile(path, hdr, 0644))
			_, err = Load(path)
			assert.ErrorIs(t, err, ErrCorruptIndex)

			var compressed bytes.Buffer
			enc, err := zstd.NewWriter(&compressed)
			require.NoError(t, err)
			_, err = enc.Write(hdr)
			require.NoError(t, err)
			require.NoError(t, enc.Close())
			_, err = ReadIndex(&compressed)
			assert.ErrorIs(t, err, ErrCorruptIndex)
		})
	}
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, c)
	c, err = ParseCompression("zstd")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, c)
	_, err = ParseCompression("gzip")
	assert.Error(t, err)
}
