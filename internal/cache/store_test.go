package cache

import (
	"testing"
)

func assertKeysEqual(t *testing.T, got []Key, want []Key) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d keys, want %d: got=%+v want=%+v", len(got), len(want), got, want)
	}
	seen := map[Key]bool{}
	for _, k := range got {
		seen[k] = true
	}
	for _, k := range want {
		if !seen[k] {
			t.Fatalf("expected key %+v present in %+v", k, got)
		}
	}
}

func TestFileStoreReadWriteDeleteRoundTrip(t *testing.T) {
	s := NewFileStore(t.TempDir())
	k := Key{FileID: 1, FileVersion: 2, BlockID: 3, BlockVersion: 4}

	if _, ok := s.Read(k); ok {
		t.Fatalf("expected a miss before any write")
	}
	s.Write(k, []byte("payload"))
	data, ok := s.Read(k)
	if !ok || string(data) != "payload" {
		t.Fatalf("Read after Write = (%q, %v)", data, ok)
	}
	s.Delete(k)
	if _, ok := s.Read(k); ok {
		t.Fatalf("expected a miss after Delete")
	}
}

func TestFileStoreKeysEnumeratesWrittenEntries(t *testing.T) {
	s := NewFileStore(t.TempDir())
	k1 := Key{FileID: 1, FileVersion: 1, BlockID: 0, BlockVersion: 1}
	k2 := Key{FileID: 1, FileVersion: 2, BlockID: 5, BlockVersion: 1}
	s.Write(k1, []byte("a"))
	s.Write(k2, []byte("b"))

	assertKeysEqual(t, s.Keys(), []Key{k1, k2})
}

func TestFileStoreKeysEmptyOnFreshRoot(t *testing.T) {
	s := NewFileStore(t.TempDir())
	if keys := s.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys on a fresh root, got %+v", keys)
	}
}
