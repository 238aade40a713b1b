package embeds

import (
	"encoding/base64"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"
)

// MegaCloud encrypts its source list with three rounds of a keyed
// shift + columnar transposition + substitution over printable ASCII.

const (
	alphabetStart = 32
	alphabetSize  = 95 // printable ASCII, 32..126
	cipherRounds  = 3
)

// decryptSources returns the JSON source list hidden in src, or "" when the
// payload does not decrypt to a length-prefixed string.
func decryptSources(src, clientKey, megaKey string) string {
	data := lenientBase64(src)
	if data == nil {
		return ""
	}

	key := deriveKey(megaKey, clientKey)
	for round := cipherRounds; round > 0; round-- {
		data = undoRound(data, key+strconv.Itoa(round))
	}

	if len(data) < 4 {
		return ""
	}
	n, err := strconv.Atoi(string(data[:4]))
	if err != nil || n < 0 || 4+n > len(data) {
		return ""
	}
	return string(data[4 : 4+n])
}

// lenientBase64 decodes standard base64 ignoring padding and whitespace.
func lenientBase64(s string) []byte {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '=', '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	out, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return out
}

func inAlphabet(c byte) bool {
	return c >= alphabetStart && c < alphabetStart+alphabetSize
}

// lcg is the linear congruential generator both sides seed from a key.
type lcg uint64

func newLCG(key string) *lcg {
	var h uint64
	for i := 0; i < len(key); i++ {
		h = (h*31 + uint64(key[i])) & 0xffffffff
	}
	g := lcg(h)
	return &g
}

func (g *lcg) next(n int) int {
	*g = (*g*1103515245 + 12345) & 0x7fffffff
	return int(uint64(*g) % uint64(n))
}

// undoRound reverses one encryption round keyed by roundKey.
func undoRound(data []byte, roundKey string) []byte {
	rng := newLCG(roundKey)
	shifted := make([]byte, len(data))
	for i, c := range data {
		if !inAlphabet(c) {
			shifted[i] = c
			continue
		}
		idx := int(c) - alphabetStart
		shifted[i] = byte(alphabetStart + (idx-rng.next(alphabetSize)+alphabetSize)%alphabetSize)
	}

	out := columnar(shifted, roundKey)

	sub := shuffledAlphabet(roundKey)
	var reverse [256]byte
	for i := range reverse {
		reverse[i] = byte(i)
	}
	for i, c := range sub {
		reverse[c] = byte(alphabetStart + i)
	}
	for i, c := range out {
		out[i] = reverse[c]
	}
	return out
}

// shuffledAlphabet is a keyed Fisher-Yates permutation of the alphabet.
func shuffledAlphabet(key string) []byte {
	out := make([]byte, alphabetSize)
	for i := range out {
		out[i] = byte(alphabetStart + i)
	}
	rng := newLCG(key)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.next(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// columnar fills a grid column by column, visiting columns in the order of
// their key byte, then reads it row by row. Short grids are space padded.
func columnar(src []byte, key string) []byte {
	cols := len(key)
	if cols == 0 {
		return slices.Clone(src)
	}
	rows := (len(src) + cols - 1) / cols

	grid := make([]byte, rows*cols)
	for i := range grid {
		grid[i] = ' '
	}

	order := make([]int, cols)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return int(key[a]) - int(key[b]) })

	pos := 0
	for _, col := range order {
		for row := 0; row < rows && pos < len(src); row++ {
			grid[row*cols+col] = src[pos]
			pos++
		}
	}
	return grid
}

// deriveKey mixes the published MegaCloud key with the per-page client key.
func deriveKey(megaKey, clientKey string) string {
	seed := []byte(megaKey + clientKey)
	if len(seed) == 0 {
		return ""
	}

	h := new(big.Int)
	mul := big.NewInt(158) // h*31 + h<<7 - h
	for _, c := range seed {
		h.Mul(h, mul).Add(h, big.NewInt(int64(c)))
	}
	lh := new(big.Int).Mod(h, big.NewInt(math.MaxInt64)).Int64()

	mixed := make([]byte, len(seed))
	for i, c := range seed {
		mixed[i] = c ^ 247
	}
	pivot := (int(lh%int64(len(mixed))) + 5) % len(mixed)
	mixed = slices.Concat(mixed[pivot:], mixed[:pivot])

	leaf := []byte(clientKey)
	slices.Reverse(leaf)

	key := make([]byte, 0, len(mixed)+len(leaf))
	for i := 0; i < max(len(mixed), len(leaf)); i++ {
		if i < len(mixed) {
			key = append(key, mixed[i])
		}
		if i < len(leaf) {
			key = append(key, leaf[i])
		}
	}

	key = key[:min(96+int(lh%33), len(key))]
	for i, c := range key {
		key[i] = c%alphabetSize + alphabetStart
	}
	return string(key)
}
