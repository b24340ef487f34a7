package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultPlateLengths is the accepted plate length set for the target
// jurisdiction.
var DefaultPlateLengths = []int{6, 7}

// DefaultSubstitutions maps OCR confusions onto the plate character set.
// W→M is a frequency heuristic: M is far more common than W on plates.
// Sources and targets are disjoint, so application order does not matter.
var DefaultSubstitutions = map[rune]rune{
	'I': '1',
	'O': '0',
	'W': 'M',
}

var defaultNormalizer = NewNormalizer(DefaultPlateLengths, DefaultSubstitutions)

// NormalizePlate length-filters and canonicalizes a raw engine read using the
// default policy. The second return is false when the read is rejected.
func NormalizePlate(raw string) (string, bool) {
	return defaultNormalizer.Normalize(raw)
}

// Normalizer holds a plate acceptance policy. It is immutable once built and
// safe for concurrent use.
type Normalizer struct {
	lengths map[int]struct{}
	subst   map[rune]rune
}

func NewNormalizer(lengths []int, subst map[rune]rune) *Normalizer {
	n := &Normalizer{
		lengths: make(map[int]struct{}, len(lengths)),
		subst:   make(map[rune]rune, len(subst)),
	}
	for _, l := range lengths {
		n.lengths[l] = struct{}{}
	}
	for from, to := range subst {
		n.subst[from] = to
	}
	return n
}

// Normalize returns the canonical plate text, or ("", false) when the length
// is not accepted or raw is not valid UTF-8. Length is counted in characters,
// not bytes.
func (n *Normalizer) Normalize(raw string) (string, bool) {
	if !utf8.ValidString(raw) {
		return "", false
	}
	if _, ok := n.lengths[utf8.RuneCountInString(raw)]; !ok {
		return "", false
	}
	if len(n.subst) == 0 {
		return raw, true
	}
	return strings.Map(func(r rune) rune {
		if to, ok := n.subst[r]; ok {
			return to
		}
		return r
	}, raw), true
}

// ParseSubstitutions reads a table written as "I:1,O:0,W:M".
func ParseSubstitutions(pairs string) (map[rune]rune, error) {
	out := make(map[rune]rune)
	pairs = strings.TrimSpace(pairs)
	if pairs == "" {
		return out, nil
	}
	for _, pair := range strings.Split(pairs, ",") {
		from, to, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || utf8.RuneCountInString(from) != 1 || utf8.RuneCountInString(to) != 1 {
			return nil, fmt.Errorf("invalid substitution %q, want X:Y", pair)
		}
		f, _ := utf8.DecodeRuneInString(from)
		t, _ := utf8.DecodeRuneInString(to)
		if _, dup := out[f]; dup {
			return nil, fmt.Errorf("duplicate substitution for %q", from)
		}
		out[f] = t
	}
	return out, nil
}
