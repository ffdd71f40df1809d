package slug

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	MaxLength         = 50
	DefaultProbeLimit = 1000
)

var (
	invalidCharsRe = regexp.MustCompile(`[^a-z0-9\s-]`)
	separatorsRe   = regexp.MustCompile(`[\s-]+`)
)

// Normalize lowercases s, drops everything outside [a-z0-9 -], joins words
// with single hyphens and caps the result at MaxLength.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = invalidCharsRe.ReplaceAllString(s, "")
	s = separatorsRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > MaxLength {
		s = strings.TrimRight(s[:MaxLength], "-")
	}
	return s
}

// Lookup reports which source item, if any, owns a slug. A found slug with a
// zero owner belongs to a post that did not come from the source.
type Lookup interface {
	FindSlugOwner(ctx context.Context, slug string) (sourceID int64, found bool, err error)
}

// Allocator hands out slugs that are unique in the store and stable across re-syncs.
type Allocator struct {
	lookup     Lookup
	probeLimit int
}

func NewAllocator(lookup Lookup, probeLimit int) *Allocator {
	if probeLimit <= 0 {
		probeLimit = DefaultProbeLimit
	}
	return &Allocator{lookup: lookup, probeLimit: probeLimit}
}

// Allocate returns the first free candidate among base, base-1, base-2, ...
// A candidate already owned by sourceID is reused.
func (a *Allocator) Allocate(ctx context.Context, base string, sourceID int64) (string, error) {
	root := Normalize(base)
	if root == "" {
		root = "post-" + strconv.FormatInt(sourceID, 10)
	}

	for i := 0; i <= a.probeLimit; i++ {
		candidate := root
		if i > 0 {
			candidate = root + "-" + strconv.Itoa(i)
		}

		owner, found, err := a.lookup.FindSlugOwner(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("probe slug %q: %w", candidate, err)
		}
		if !found || owner == sourceID {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no free slug for %q after %d probes", root, a.probeLimit)
}
