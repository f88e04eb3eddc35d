// Package specfile specifies the object model the XML specfile parser
// must emit, plus a minimal decoder sufficient to
// drive that model, MS-bundle decompression, and the resync entry points
// used by the reload loop.
package specfile

import "github.com/acqgw/ag/internal/namespace"

// Pair is one <Pair> element: a path (file or dir), its permission and
// revalidation period, and the <Query> that selects a driver and supplies
// its opaque query string.
type Pair struct {
	Path        string
	Type        namespace.EntryType
	Perm        uint32
	RevalSec    int64
	QueryType   string
	QueryString string
}

// Doc is the full object model of one specfile: the opaque <Config> block
// plus every <Pair>.
type Doc struct {
	Config map[string]string
	Pairs  []Pair
}

// BuildFS converts a parsed Doc into a fresh path -> MapInfo map. It always
// adds the root "/" but synthesizes no other ancestor directories: every
// other proper prefix of
// every path must itself appear as a Pair, or Validate
// will reject the result as a structural error.
func BuildFS(doc *Doc) map[string]*namespace.MapInfo {
	m := make(map[string]*namespace.MapInfo, len(doc.Pairs)+1)
	m["/"] = &namespace.MapInfo{Type: namespace.Dir, FilePerm: 0o555, CacheValid: true}
	for _, p := range doc.Pairs {
		m[p.Path] = &namespace.MapInfo{
			Type:        p.Type,
			QueryString: p.QueryString,
			Driver:      p.QueryType,
			FilePerm:    p.Perm,
			RevalSec:    p.RevalSec,
		}
	}
	return m
}
