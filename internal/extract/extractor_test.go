package extract

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestExtractBytes_PlainText(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("hello world"), "text/plain")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_TextSubtypesAndParams(t *testing.T) {
	e := NewExtractor()
	for _, mt := range []string{"text/markdown", "text/plain; charset=utf-8", "TEXT/PLAIN"} {
		if _, err := e.ExtractBytes([]byte("ok"), mt); err != nil {
			t.Errorf("ExtractBytes(%q) error: %v", mt, err)
		}
	}
}

func TestExtractBytes_InvalidUTF8Repaired(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte{'a', 0xff, 'b'}, "text/plain")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a�b" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_UnsupportedType(t *testing.T) {
	e := NewExtractor()
	_, err := e.ExtractBytes([]byte("PK..."), "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("err=%v, want ErrUnsupportedType", err)
	}
}

func TestExtractBytes_BrokenPDF(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("not a pdf"), "application/pdf"); err == nil {
		t.Error("expected error for unreadable PDF")
	}
}

func TestExtract_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("from disk"), 0644); err != nil {
		t.Fatal(err)
	}
	e := NewExtractor()
	got, err := e.Extract(path, "text/plain")
	if err != nil {
		t.Fatal(err)
	}
	if got != "from disk" {
		t.Errorf("got %q", got)
	}
}
