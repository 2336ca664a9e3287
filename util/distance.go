package util

// Hamming returns the number of positions at which a and b differ.  If the
// lengths differ, every position past the end of the shorter string counts as
// a mismatch.
func Hamming(a, b string) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	d := len(b) - len(a)
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			d++
		}
	}
	return d
}

// Levenshtein computes the edit distance between two barcodes: the number of
// single-base insertions, deletions and substitutions it takes to transform a
// into b.
//
// Only two rows of the edit distance matrix are kept.
func Levenshtein(a, b string) int {
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
			v := prev[j-1] + cost // diagonal
			if x := prev[j] + 1; x < v {
				v = x // down
			}
			if x := cur[j-1] + 1; x < v {
				v = x // right
			}
			cur[j] = v
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Nearest returns the element of candidates closest to query under dist.  ok
// is false if the smallest distance exceeds maxDist, or if more than one
// candidate attains it.
func Nearest(query string, candidates []string, maxDist int, dist func(a, b string) int) (best string, ok bool) {
	bestDist := maxDist + 1
	ties := 0
	for _, c := range candidates {
		d := dist(query, c)
		switch {
		case d < bestDist:
			best, bestDist, ties = c, d, 1
		case d == bestDist:
			ties++
		}
	}
	if bestDist > maxDist || ties != 1 {
		return "", false
	}
	return best, true
}
