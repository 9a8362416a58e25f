package vector

import "os"

// rowScore is a backend search hit: a row position and its inner-product score.
type rowScore struct {
	row   int
	score float64
}

// backend stores vector rows in insertion order and answers top-k
// inner-product queries over them. Chunk ids are not a backend concern; the
// Store maps rows to ids through the shared metadata file.
type backend interface {
	rows() int
	appendVectors(vectors [][]float32) error
	// search returns up to k hits in descending score order, ties broken by
	// row order.
	search(query []float32, k int) ([]rowScore, error)
	save() error
	close() error
	kind() string
}

// openBackend selects a backend by availability: the FAISS flat index when
// compiled in, otherwise the raw-matrix linear scan. When FAISS is available
// but the chatbot only has a matrix blob on disk, the matrix backend is kept
// so existing stores stay readable.
func openBackend(indexPath, matrixPath string, dimension int) (backend, error) {
	if faissAvailable() {
		if _, err := os.Stat(indexPath); err == nil || !fileExists(matrixPath) {
			return openFAISSBackend(indexPath, dimension)
		}
	}
	return openMatrixBackend(matrixPath, dimension)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
