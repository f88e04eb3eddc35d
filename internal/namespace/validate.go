package namespace

import (
	"sort"

	"github.com/acqgw/ag/internal/cmn"
)

// Validate implements validate_map_info: sorts paths by
// descending depth and, for each, verifies every proper prefix exists and
// is a Dir. Returns the first violation found.
func (fs *AGFS) Validate() error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return validateLocked(fs.m)
}

func validateLocked(m map[string]*MapInfo) error {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return depth(paths[i]) > depth(paths[j]) })

	for _, p := range paths {
		for _, anc := range Prefixes(p) {
			ent, ok := m[anc]
			if !ok {
				return cmn.Wrapf(cmn.ErrNotFound, "validate: %q missing ancestor %q", p, anc)
			}
			if ent.Type != Dir {
				return cmn.Wrapf(cmn.ErrBadRequest, "validate: ancestor %q of %q is not a directory", anc, p)
			}
		}
	}
	if root, ok := m["/"]; !ok || root.Type != Dir {
		return cmn.Wrap(cmn.ErrStructural, "validate: root invariant violated")
	}
	return nil
}

// ValidatePermissions rejects any MapInfo with a write bit set ; called at specfile-parse time before entries
// ever reach an AGFS.
func ValidatePermissions(perm uint32) error {
	const writeBits = 0o222
	if perm&writeBits != 0 {
		return cmn.Wrapf(cmn.ErrStructural, "perm %#o: write bit set", perm)
	}
	return nil
}
