package crossref

import "strings"

// Similarity returns 1 for case-insensitively equal strings, otherwise
// 1 - levenshtein/maxLen over the lowercased runes.
func Similarity(a, b string) float64 {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la == lb {
		return 1
	}
	ra, rb := []rune(la), []rune(lb)
	longest := max(len(ra), len(rb))
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// Levenshtein is the unit-cost edit distance between a and b in runes.
func Levenshtein(a, b string) int {
	return levenshtein([]rune(a), []rune(b))
}

func levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
