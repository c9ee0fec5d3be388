package conversation

import (
	"math"
)

// Cosine returns the cosine similarity of a and b, or 0 when either is empty,
// zero, or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MaxSimilarity is the best cosine between vec and any of vectors. Nil entries
// are skipped; no usable vector yields 0.
func MaxSimilarity(vec []float32, vectors [][]float32) float64 {
	best, found := 0.0, false
	for _, v := range vectors {
		if v == nil {
			continue
		}
		s := Cosine(vec, v)
		if !found || s > best {
			best, found = s, true
		}
	}
	return best
}
