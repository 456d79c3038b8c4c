package agents

import (
	"strings"
	"unicode/utf8"
)

// containmentScore is the minimum similarity of two names where one
// normalized name contains the other (a suffix or prefix was added).
const containmentScore = 0.9

// Normalize lowercases name and keeps only ASCII digits and letters and
// CJK unified ideographs. Spaces, punctuation and emoji are dropped.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 0x4e00 && r <= 0x9fff:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similarity scores two agent names between 0 and 1.
//
// Names are normalized first. Empty names score 0 and equal names 1.
// Otherwise the score is the Ratcliff/Obershelp ratio of the normalized
// names, raised to at least 0.9 when one contains the other.
//
//	Similarity("Nano Banana", "nano banana pro") // 0.9
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	score := ratio([]rune(na), []rune(nb))
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return max(score, containmentScore)
	}
	return score
}

// Match reports whether two names refer to the same agent: identical,
// equal ignoring case and surrounding space, or at least threshold similar.
func Match(a, b string, threshold float64) bool {
	if a == b {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return true
	}
	return Similarity(a, b) >= threshold
}

// TieBreak picks between names with equal similarity.
type TieBreak string

const (
	// TieFirst keeps the earliest name.
	TieFirst TieBreak = "first"
	// TieShortest prefers the shorter normalized name, then the earliest.
	TieShortest TieBreak = "shortest"
)

// Best returns the index and score of the name most similar to alias.
// Ties keep the earliest name. Returns -1 when no name scores above zero.
func Best(alias string, names []string) (int, float64) {
	return BestBy(alias, names, TieFirst)
}

// BestBy is Best with an explicit tie-break.
func BestBy(alias string, names []string, tie TieBreak) (int, float64) {
	best, bestScore := -1, 0.0
	for i, name := range names {
		if name == "" {
			continue
		}
		score := Similarity(alias, name)
		switch {
		case score > bestScore:
			best, bestScore = i, score
		case score == bestScore && best >= 0 && tie == TieShortest &&
			utf8.RuneCountInString(Normalize(name)) < utf8.RuneCountInString(Normalize(names[best])):
			best = i
		}
	}
	return best, bestScore
}

// ratio computes 2*M/T where M is the number of runes in the matching
// blocks found by recursively taking the longest common block.
func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingRunes(a, b, 0, len(a), 0, len(b))) / float64(total)
}

func matchingRunes(a, b []rune, alo, ahi, blo, bhi int) int {
	i, j, size := longestMatch(a, b, alo, ahi, blo, bhi)
	if size == 0 {
		return 0
	}

	n := size
	if alo < i && blo < j {
		n += matchingRunes(a, b, alo, i, blo, j)
	}
	if i+size < ahi && j+size < bhi {
		n += matchingRunes(a, b, i+size, ahi, j+size, bhi)
	}
	return n
}

// longestMatch finds the longest block a[i:i+size] == b[j:j+size] within
// the given bounds. Among equally long blocks it picks the one starting
// earliest in a, then earliest in b.
func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, bestSize int) {
	besti, bestj = alo, blo

	// runLen[j+1] is the length of the match ending at a[i-1], b[j].
	runLen := make([]int, len(b)+1)
	next := make([]int, len(b)+1)

	for i := alo; i < ahi; i++ {
		for j := blo; j < bhi; j++ {
			if a[i] != b[j] {
				next[j+1] = 0
				continue
			}
			k := runLen[j] + 1
			next[j+1] = k
			if k > bestSize {
				besti, bestj, bestSize = i-k+1, j-k+1, k
			}
		}
		runLen, next = next, runLen
		clear(next)
	}
	return besti, bestj, bestSize
}
