// Package username builds the throwaway display names chat participants get
// for the lifetime of one room visit.
package username

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

const (
	prefix       = "anonymous"
	suffixLength = 5
	alphabet     = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var (
	adjectives = []string{
		"quick", "lazy", "happy", "brave", "calm", "eager", "fancy", "gentle",
		"jolly", "kind", "lively", "proud", "silly", "witty", "zealous",
	}
	nouns = []string{
		"fox", "dog", "cat", "bear", "lion", "tiger", "eagle", "shark",
		"wolf", "panda", "koala", "otter", "seal", "dove", "hawk",
	}
)

// Generate returns a name shaped like anonymous-<adjective>-<noun>-<suffix>
// where suffix is five lowercase base36 characters.
func Generate(r *rand.Rand) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('-')
	b.WriteString(adjectives[r.Intn(len(adjectives))])
	b.WriteByte('-')
	b.WriteString(nouns[r.Intn(len(nouns))])
	b.WriteByte('-')
	for i := 0; i < suffixLength; i++ {
		b.WriteByte(alphabet[r.Intn(len(alphabet))])
	}
	return b.String()
}

// Generator hands out names from a private random source. Safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator seeds a generator. A zero seed uses the current time.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Next returns a fresh name.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Generate(g.rng)
}
