//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"fmt"
	"os"
	"unsafe"
)

// faissBackend is the optimized backend: a FAISS flat inner-product index.
// Row labels are insertion positions, so the Store's chunk-id list maps
// directly onto FAISS labels.
type faissBackend struct {
	index *C.FaissIndexFlatIP
	path  string
	dim   int
}

func faissAvailable() bool { return true }

// openFAISSBackend creates a flat-IP index of the given dimension and loads
// the persisted blob at path if present.
func openFAISSBackend(path string, dimension int) (backend, error) {
	b := &faissBackend{path: path, dim: dimension}
	if _, err := os.Stat(path); err == nil {
		cPath := C.CString(path)
		defer C.free(unsafe.Pointer(cPath))
		var loaded *C.FaissIndex
		if ret := C.faiss_read_index_fname(cPath, 0, &loaded); ret != 0 {
			return nil, fmt.Errorf("load FAISS index: %s", faissLastError())
		}
		b.index = loaded
		if d := int(C.faiss_Index_d(b.index)); d != dimension {
			C.faiss_Index_free(b.index)
			return nil, fmt.Errorf("%w: FAISS blob has dimension %d, index expects %d",
				ErrDimensionMismatch, d, dimension)
		}
		return b, nil
	}
	var index *C.FaissIndexFlatIP
	if ret := C.faiss_IndexFlatIP_new_with(&index, C.idx_t(dimension)); ret != 0 {
		return nil, fmt.Errorf("create FAISS index: %s", faissLastError())
	}
	b.index = index
	return b, nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

func (b *faissBackend) kind() string { return "faiss" }

func (b *faissBackend) rows() int {
	return int(C.faiss_Index_ntotal(b.index))
}

func (b *faissBackend) appendVectors(vectors [][]float32) error {
	n := len(vectors)
	flat := make([]float32, n*b.dim)
	for i, vec := range vectors {
		copy(flat[i*b.dim:(i+1)*b.dim], vec)
	}
	ret := C.faiss_Index_add(b.index, C.idx_t(n), (*C.float)(unsafe.Pointer(&flat[0])))
	if ret != 0 {
		return fmt.Errorf("add vectors to FAISS index: %s", faissLastError())
	}
	return nil
}

func (b *faissBackend) search(query []float32, k int) ([]rowScore, error) {
	if total := b.rows(); k > total {
		k = total
	}
	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		b.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}
	hits := make([]rowScore, 0, k)
	for i := 0; i < k; i++ {
		if labels[i] < 0 {
			continue
		}
		hits = append(hits, rowScore{row: int(labels[i]), score: float64(distances[i])})
	}
	return hits, nil
}

func (b *faissBackend) save() error {
	tmp := b.path + ".tmp"
	cPath := C.CString(tmp)
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.faiss_write_index_fname(b.index, cPath); ret != 0 {
		return fmt.Errorf("save FAISS index: %s", faissLastError())
	}
	if err := os.Rename(tmp, b.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (b *faissBackend) close() error {
	if b.index != nil {
		C.faiss_Index_free(b.index)
		b.index = nil
	}
	return nil
}
