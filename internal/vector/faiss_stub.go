//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import "errors"

// FAISS support is compiled in with -tags=faiss and CGO. Without it, every
// store uses the matrix backend.

func faissAvailable() bool { return false }

func openFAISSBackend(path string, dimension int) (backend, error) {
	return nil, errors.New("FAISS not available: build with -tags=faiss and install FAISS library")
}
