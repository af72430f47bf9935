package canonical

import (
	"hash/fnv"
	"math/rand"
	"regexp"
	"strings"
)

const (
	minhashPermutations = 64
	shingleSize         = 6
)

// Fixed-seed permutation coefficients keep signatures stable across runs.
var permA, permB = minhashCoefficients()

func minhashCoefficients() ([]uint64, []uint64) {
	rng := rand.New(rand.NewSource(0x5eed5eed))
	a := make([]uint64, minhashPermutations)
	b := make([]uint64, minhashPermutations)
	for i := range a {
		a[i] = rng.Uint64() | 1 // odd multiplier
		b[i] = rng.Uint64()
	}
	return a, b
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// shingles returns the word 6-grams of text. Texts shorter than one
// shingle yield a single shingle of everything they have, so short records
// can still collide when they are literally identical.
func shingles(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	if len(words) == 0 {
		return nil
	}
	if len(words) < shingleSize {
		return []string{strings.Join(words, " ")}
	}
	out := make([]string, 0, len(words)-shingleSize+1)
	for i := 0; i+shingleSize <= len(words); i++ {
		out = append(out, strings.Join(words[i:i+shingleSize], " "))
	}
	return out
}

// minhashSignature computes the 64-permutation MinHash signature of text.
// nil when the text has no usable tokens.
func minhashSignature(text string) []uint64 {
	sh := shingles(text)
	if len(sh) == 0 {
		return nil
	}
	sig := make([]uint64, minhashPermutations)
	for i := range sig {
		sig[i] = ^uint64(0)
	}
	for _, s := range sh {
		h := fnv.New64a()
		_, _ = h.Write([]byte(s))
		base := h.Sum64()
		for i := 0; i < minhashPermutations; i++ {
			v := permA[i]*base + permB[i]
			if v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// minhashSimilarity estimates Jaccard similarity from two signatures.
func minhashSimilarity(a, b []uint64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	match := 0
	for i := range a {
		if a[i] == b[i] {
			match++
		}
	}
	return float64(match) / float64(len(a))
}
