package lattice

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Per-bucket caps after scoring: ADR capsules first, then other policy.
const (
	maxADRCapsules    = 4
	maxPolicyCapsules = 4
)

// Capsule is one policy capsule from the bundle file.
type Capsule struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Snippet string   `json:"snippet"`
	Tags    []string `json:"tags,omitempty"`

	score int
}

type capsuleBundle struct {
	Capsules []Capsule `json:"capsules"`
}

// capsuleCache reads the policy bundle file, cached by mtime. Refresh
// under read contention is last-write-wins; capsule data is advisory.
type capsuleCache struct {
	path string

	mu     sync.Mutex
	mtime  time.Time
	cached []Capsule
}

func newCapsuleCache(path string) *capsuleCache {
	return &capsuleCache{path: path}
}

func (c *capsuleCache) load() ([]Capsule, error) {
	if c.path == "" {
		return nil, nil
	}
	info, err := os.Stat(c.path)
	if err != nil {
		return nil, fmt.Errorf("stat policy bundle: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil && info.ModTime().Equal(c.mtime) {
		return c.cached, nil
	}

	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read policy bundle: %w", err)
	}
	var bundle capsuleBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("decode policy bundle: %w", err)
	}
	c.cached = bundle.Capsules
	c.mtime = info.ModTime()
	return c.cached, nil
}

// selectCapsules scores capsules by query-term overlap across title,
// snippet, and tags, sorts descending, and concatenates ADR-prefixed
// capsules (cap 4) before the rest (cap 4).
func selectCapsules(caps []Capsule, terms []string) []Capsule {
	var scored []Capsule
	for _, c := range caps {
		hay := strings.ToLower(c.Title + " " + c.Snippet + " " + strings.Join(c.Tags, " "))
		s := 0
		for _, t := range terms {
			if strings.Contains(hay, t) {
				s++
			}
		}
		if s > 0 {
			c.score = s
			scored = append(scored, c)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	var adr, policy []Capsule
	for _, c := range scored {
		if strings.HasPrefix(c.ID, "ADR-") {
			if len(adr) < maxADRCapsules {
				adr = append(adr, c)
			}
		} else if len(policy) < maxPolicyCapsules {
			policy = append(policy, c)
		}
	}
	return append(adr, policy...)
}
