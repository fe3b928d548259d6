package oicp

import (
	"fmt"
	"sort"
	"strings"
)

// ProductID is a partner product identifier. Partners encode structured
// products as a delimited string of key=value pairs, e.g. "D=15min|P=AC1".
// Plain identifiers without pairs ("Standard Price") are also accepted.
// The canonical form puts D first, then P, then remaining keys sorted.
type ProductID string

func (id ProductID) String() string { return string(id) }

// ProductPair is one key=value element of a structured product id.
type ProductPair struct {
	Key   string
	Value string
}

// ParseProductID validates a product id and returns its canonical encoding.
func ParseProductID(s string) (ProductID, error) {
	if s == "" {
		return "", fmt.Errorf("oicp: empty ProductID")
	}
	if !strings.Contains(s, "=") {
		if strings.Contains(s, "|") {
			return "", fmt.Errorf("oicp: invalid ProductID %q: delimiter without key=value pairs", s)
		}
		return ProductID(s), nil
	}

	pairs, err := parseProductPairs(s)
	if err != nil {
		return "", err
	}
	return ProductID(encodeProductPairs(pairs)), nil
}

// Pairs decomposes a structured product id. Plain identifiers yield nil.
func (id ProductID) Pairs() []ProductPair {
	if !strings.Contains(string(id), "=") {
		return nil
	}
	pairs, err := parseProductPairs(string(id))
	if err != nil {
		return nil
	}
	return pairs
}

func parseProductPairs(s string) ([]ProductPair, error) {
	parts := strings.Split(s, "|")
	pairs := make([]ProductPair, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		key, value, ok := strings.Cut(part, "=")
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("oicp: invalid ProductID element %q", part)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("oicp: duplicate ProductID key %q", key)
		}
		seen[key] = struct{}{}
		pairs = append(pairs, ProductPair{Key: key, Value: value})
	}
	return pairs, nil
}

// encodeProductPairs emits the canonical order: D, then P, then the rest
// sorted by key. Deterministic so re-encoding is stable across passes.
func encodeProductPairs(pairs []ProductPair) string {
	ordered := make([]ProductPair, len(pairs))
	copy(ordered, pairs)
	rank := func(key string) int {
		switch key {
		case "D":
			return 0
		case "P":
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := rank(ordered[i].Key), rank(ordered[j].Key)
		if ri != rj {
			return ri < rj
		}
		if ri == 2 {
			return ordered[i].Key < ordered[j].Key
		}
		return false
	})

	elems := make([]string, len(ordered))
	for i, p := range ordered {
		elems[i] = p.Key + "=" + p.Value
	}
	return strings.Join(elems, "|")
}
