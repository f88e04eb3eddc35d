package cmn

import (
	"math/rand"
	"sync"

	"github.com/teris-io/shortid"
	"go.uber.org/atomic"
)

// uuidABC is the alphabet used for human-readable, non-numeric
// leading-character short IDs.
const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
	rtie    atomic.Int32
)

// InitShortID must be called once at boot with an arbitrary seed (e.g. the
// daemon's start time) before GenUUID/GenTie are used.
func InitShortID(seed uint64) {
	sidOnce.Do(func() {
		sid = shortid.MustNew(4, uuidABC, seed)
	})
}

// GenUUID produces a short, human-readable id whose first character is a
// letter and whose last character is neither '-' nor '_'.
func GenUUID() string {
	uuid := sid.MustGenerate()
	var h, t string
	if !isAlpha(uuid[0]) {
		h = string(rune('A' + rand.Int()%26))
	}
	if c := uuid[len(uuid)-1]; c == '-' || c == '_' {
		t = string(rune('a' + rand.Int()%26))
	}
	return h + uuid + t
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// GenTie folds a process-wide monotonic counter into three base-64 chars:
// consecutive calls return different strings, and values repeat every 256
// calls.
func GenTie() string {
	tie := rtie.Add(1)
	b0 := uuidABC[tie&0x3f]
	b1 := uuidABC[-tie&0x3f]
	b2 := uuidABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}
