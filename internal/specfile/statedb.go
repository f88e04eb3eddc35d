package specfile

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/buntdb"

	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/namespace"
)

// StateDB is a derived, on-disk index over the last-known-good namespace
// snapshot . It is strictly
// a cache of namespace.AGFS; the in-memory map remains authoritative at
// runtime, and StateDB is rebuilt wholesale on every Sync rather than
// incrementally maintained.
type StateDB struct {
	db *buntdb.DB
}

// OpenStateDB opens (creating if absent) the persisted index at path. Pass
// ":memory:" for a process-local, non-persisted instance (used in tests).
func OpenStateDB(path string) (*StateDB, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, cmn.Wrap(err, "specfile: open state db")
	}
	if err := db.CreateIndex("driver", "*", buntdb.IndexJSON("driver")); err != nil && err != buntdb.ErrIndexExists {
		db.Close()
		return nil, cmn.Wrap(err, "specfile: create driver index")
	}
	return &StateDB{db: db}, nil
}

func (s *StateDB) Close() error { return s.db.Close() }

type record struct {
	Type        namespace.EntryType `json:"type"`
	Driver      string              `json:"driver"`
	QueryString string              `json:"queryString"`
	Perm        uint32              `json:"perm"`
	RevalSec    int64               `json:"revalSec"`
}

// Sync replaces the entire persisted index with snap in one transaction.
// Called after every successful specfile reload/resync,
// never on the per-request hot path.
func (s *StateDB) Sync(snap map[string]*namespace.MapInfo) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		var stale []string
		if err := tx.Ascend("", func(key, _ string) bool {
			stale = append(stale, key)
			return true
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		for path, mi := range snap {
			rec := record{Type: mi.Type, Driver: mi.Driver, QueryString: mi.QueryString, Perm: mi.FilePerm, RevalSec: mi.RevalSec}
			buf, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if _, _, err := tx.Set(path, string(buf), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// Lookup returns the persisted driver and query string for path, if any.
// Only the package tests call it.
func (s *StateDB) Lookup(path string) (driver, queryString string, ok bool) {
	_ = s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(path)
		if err != nil {
			return nil
		}
		var rec record
		if json.Unmarshal([]byte(v), &rec) == nil {
			driver, queryString, ok = rec.Driver, rec.QueryString, true
		}
		return nil
	})
	return driver, queryString, ok
}

// Prefix returns every persisted path under dir (non-recursive-or-not per
// includeDescendants), sorted by the underlying index's key order.
func (s *StateDB) Prefix(dir string, includeDescendants bool) []string {
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	var out []string
	_ = s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendGreaterOrEqual("", dir, func(key, _ string) bool {
			if !strings.HasPrefix(key, dir) {
				return false
			}
			if !includeDescendants && strings.Contains(strings.TrimPrefix(key, dir), "/") {
				return true
			}
			out = append(out, key)
			return true
		})
	})
	return out
}
