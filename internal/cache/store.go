package cache

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/karrick/godirwalk"
)

// Store is the pluggable backing store abstraction : RAM-only, or file-backed in a
// content-addressed layout under a cache root.
type Store interface {
	Read(k Key) ([]byte, bool)
	Write(k Key, data []byte)
	Delete(k Key)
	// Keys enumerates everything currently present, used to rebuild the
	// evictor's LRU index at startup for a file-backed store.
	Keys() []Key
}

// RAMStore keeps every entry in a sync.Map; used for tests and for
// deployments that don't need a file-backed cache root.
type RAMStore struct {
	m sync.Map // Key -> []byte
}

func NewRAMStore() *RAMStore { return &RAMStore{} }

func (s *RAMStore) Read(k Key) ([]byte, bool) {
	v, ok := s.m.Load(k)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (s *RAMStore) Write(k Key, data []byte) { s.m.Store(k, data) }
func (s *RAMStore) Delete(k Key)             { s.m.Delete(k) }

func (s *RAMStore) Keys() []Key {
	var out []Key
	s.m.Range(func(k, _ any) bool {
		out = append(out, k.(Key))
		return true
	})
	return out
}

// FileStore persists entries under root in a content-addressed layout:
// root/<file_id>/<file_version>/<block_id>.<block_version>.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore { return &FileStore{root: root} }

func (s *FileStore) pathFor(k Key) string {
	dir := filepath.Join(s.root, itoa(k.FileID), itoa(k.FileVersion))
	return filepath.Join(dir, itoa(k.BlockID)+"."+itoa(k.BlockVersion))
}

func (s *FileStore) Read(k Key) ([]byte, bool) {
	data, err := os.ReadFile(s.pathFor(k))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (s *FileStore) Write(k Key, data []byte) {
	p := s.pathFor(k)
	_ = os.MkdirAll(filepath.Dir(p), 0o755)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, p)
}

func (s *FileStore) Delete(k Key) {
	_ = os.Remove(s.pathFor(k))
}

// Keys walks the cache root with godirwalk (fast, allocation-light
// directory traversal) to rebuild the LRU index at startup.
func (s *FileStore) Keys() []Key {
	var out []Key
	_ = godirwalk.Walk(s.root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			if k, ok := parseCacheFilename(s.root, path); ok {
				out = append(out, k)
			}
			return nil
		},
		Unsorted: true,
	})
	return out
}

func parseCacheFilename(root, path string) (Key, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return Key{}, false
	}
	var fileID, fileVersion, blockID, blockVersion uint64
	segs := splitSlash(filepath.ToSlash(rel))
	if len(segs) != 3 {
		return Key{}, false
	}
	fileID = atoiU64(segs[0])
	fileVersion = atoiU64(segs[1])
	base := segs[2]
	dot := indexByte(base, '.')
	if dot < 0 {
		return Key{}, false
	}
	blockID = atoiU64(base[:dot])
	blockVersion = atoiU64(base[dot+1:])
	return Key{FileID: fileID, FileVersion: fileVersion, BlockID: blockID, BlockVersion: blockVersion}, true
}
