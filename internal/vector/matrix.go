package vector

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
)

// matrixBackend is the fallback backend: a growable float32 matrix scanned
// linearly at search time. Its blob format is little-endian: dimension
// (uint32), row count (uint32), then rows of dimension*4 bytes.
type matrixBackend struct {
	path      string
	dimension int
	vectors   [][]float32
}

// openMatrixBackend loads the matrix blob at path if present.
func openMatrixBackend(path string, dimension int) (*matrixBackend, error) {
	b := &matrixBackend{path: path, dimension: dimension}
	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *matrixBackend) kind() string { return "matrix" }

func (b *matrixBackend) rows() int { return len(b.vectors) }

func (b *matrixBackend) appendVectors(vectors [][]float32) error {
	for _, vec := range vectors {
		row := make([]float32, b.dimension)
		copy(row, vec)
		b.vectors = append(b.vectors, row)
	}
	return nil
}

func (b *matrixBackend) search(query []float32, k int) ([]rowScore, error) {
	scores := make([]rowScore, len(b.vectors))
	for i, vec := range b.vectors {
		var dot float64
		for j := 0; j < b.dimension; j++ {
			dot += float64(query[j]) * float64(vec[j])
		}
		scores[i] = rowScore{row: i, score: dot}
	}
	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

func (b *matrixBackend) save() error {
	buf := make([]byte, 8+len(b.vectors)*b.dimension*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(b.dimension))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(b.vectors)))
	off := 8
	for _, vec := range b.vectors {
		for _, v := range vec {
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
			off += 4
		}
	}
	return writeFileAtomic(b.path, buf)
}

func (b *matrixBackend) load() error {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read matrix blob: %w", err)
	}
	if len(data) < 8 {
		return fmt.Errorf("%w: matrix blob truncated", ErrCorruptIndex)
	}
	dim := int(binary.LittleEndian.Uint32(data[0:4]))
	n := int(binary.LittleEndian.Uint32(data[4:8]))
	if dim != b.dimension {
		return fmt.Errorf("%w: matrix blob has dimension %d, index expects %d",
			ErrDimensionMismatch, dim, b.dimension)
	}
	if len(data) != 8+n*dim*4 {
		return fmt.Errorf("%w: matrix blob has %d bytes, expected %d for %d rows",
			ErrCorruptIndex, len(data), 8+n*dim*4, n)
	}
	b.vectors = make([][]float32, n)
	off := 8
	for i := 0; i < n; i++ {
		row := make([]float32, dim)
		for j := 0; j < dim; j++ {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
		b.vectors[i] = row
	}
	return nil
}

func (b *matrixBackend) close() error { return nil }
