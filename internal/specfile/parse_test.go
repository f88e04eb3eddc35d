package specfile

import (
	"strings"
	"testing"

	"github.com/acqgw/ag/internal/namespace"
)

const validSpecfile = `<Map>
  <Config><MaxOpenFiles>1024</MaxOpenFiles></Config>
  <Pair reval="1h"><Dir perm="0555">/a</Dir></Pair>
  <Pair reval="1h30m"><File perm="0444">/a/b</File><Query type="db">select 1</Query></Pair>
</Map>`

func TestParseValidSpecfile(t *testing.T) {
	doc, err := Parse(strings.NewReader(validSpecfile))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Config["MaxOpenFiles"] != "1024" {
		t.Fatalf("expected Config[MaxOpenFiles]=1024, got %+v", doc.Config)
	}
	if len(doc.Pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(doc.Pairs))
	}

	dir, file := doc.Pairs[0], doc.Pairs[1]
	if dir.Path != "/a" || dir.Type != namespace.Dir || dir.Perm != 0o555 {
		t.Fatalf("unexpected dir pair: %+v", dir)
	}
	if file.Path != "/a/b" || file.Type != namespace.File || file.Perm != 0o444 {
		t.Fatalf("unexpected file pair: %+v", file)
	}
	if file.QueryType != "db" || file.QueryString != "select 1" {
		t.Fatalf("unexpected query on file pair: %+v", file)
	}
	if file.RevalSec != 5400 {
		t.Fatalf("expected RevalSec 5400 (1h30m), got %d", file.RevalSec)
	}
}

func TestParseRejectsFileWithoutQuery(t *testing.T) {
	const doc = `<Map><Pair reval="1h"><File perm="0444">/a/b</File></Pair></Map>`
	if _, err := Parse(strings.NewReader(doc)); err == nil {
		t.Fatalf("expected structural error for a File pair missing <Query>")
	}
}

func TestParseRejectsBothDirAndFile(t *testing.T) {
	const doc = `<Map><Pair reval="1h"><Dir perm="0555">/a</Dir><File perm="0444">/a</File></Pair></Map>`
	if _, err := Parse(strings.NewReader(doc)); err == nil {
		t.Fatalf("expected structural error for a pair with both Dir and File")
	}
}

func TestParseRejectsNeitherDirNorFile(t *testing.T) {
	const doc = `<Map><Pair reval="1h"></Pair></Map>`
	if _, err := Parse(strings.NewReader(doc)); err == nil {
		t.Fatalf("expected structural error for a pair with neither Dir nor File")
	}
}

func TestParseRejectsWritablePermission(t *testing.T) {
	const doc = `<Map><Pair reval="1h"><Dir perm="0755">/a</Dir></Pair></Map>`
	if _, err := Parse(strings.NewReader(doc)); err == nil {
		t.Fatalf("expected structural error for a writable permission")
	}
}

func TestParseRejectsMalformedReval(t *testing.T) {
	const doc = `<Map><Pair reval="1x"><Dir perm="0555">/a</Dir></Pair></Map>`
	if _, err := Parse(strings.NewReader(doc)); err == nil {
		t.Fatalf("expected structural error for a malformed reval grammar")
	}
}

func TestBuildFSIncludesRootAndEveryPair(t *testing.T) {
	doc, err := Parse(strings.NewReader(validSpecfile))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	fsMap := BuildFS(doc)

	if _, ok := fsMap["/"]; !ok {
		t.Fatalf("BuildFS must always synthesize the root entry")
	}
	if len(fsMap) != 3 { // root + /a + /a/b
		t.Fatalf("expected 3 entries, got %d: %+v", len(fsMap), fsMap)
	}
	file, ok := fsMap["/a/b"]
	if !ok {
		t.Fatalf("missing /a/b entry")
	}
	if file.Driver != "db" || file.QueryString != "select 1" {
		t.Fatalf("BuildFS did not carry query fields through: %+v", file)
	}
}
