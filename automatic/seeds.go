package automatic

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
)

// Seed fixes the piece sequence of one game.
type Seed [32]byte

func (s Seed) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSeed(str string) (Seed, error) {
	var seed Seed
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(str))
	if err != nil {
		return seed, fmt.Errorf("bad seed %q: %w", str, err)
	}
	if len(decoded) != len(seed) {
		return seed, fmt.Errorf("bad seed %q: got %d bytes, expected %d", str, len(decoded), len(seed))
	}
	copy(seed[:], decoded)
	return seed, nil
}

func GenerateSeeds(n int) ([]Seed, error) {
	seeds := make([]Seed, n)
	for i := range seeds {
		if _, err := rand.Read(seeds[i][:]); err != nil {
			return nil, fmt.Errorf("failed to generate seed %d: %w", i, err)
		}
	}
	return seeds, nil
}

// WriteSeeds writes one seed per line after a comment header.
func WriteSeeds(w io.Writer, seeds []Seed) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# autoplay game seeds, base64 url encoding, one per game")
	for _, s := range seeds {
		fmt.Fprintln(bw, s.String())
	}
	return bw.Flush()
}

// ReadSeeds reads seeds written by WriteSeeds. Blank lines and lines
// starting with # are skipped.
func ReadSeeds(r io.Reader) ([]Seed, error) {
	var seeds []Seed
	sc := bufio.NewScanner(r)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s, err := ParseSeed(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		seeds = append(seeds, s)
	}
	return seeds, sc.Err()
}

func LoadSeeds(path string) ([]Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSeeds(f)
}
