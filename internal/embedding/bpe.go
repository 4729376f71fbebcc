package embedding

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"html"
	"io"
	"math"
	"os"
	"regexp"
	"strings"
	"sync"
)

// maxMerges is the number of merges the released CLIP vocabulary uses (49152 - 256 - 2).
const maxMerges = 48894

var bpePattern = regexp.MustCompile(`(?i)<\|startoftext\|>|<\|endoftext\|>|'s|'t|'re|'ve|'m|'ll|'d|\p{L}+|\p{N}|[^\s\p{L}\p{N}]+`)

// BPETokenizer is the CLIP byte-level BPE tokenizer built from a merges file
// (bpe_simple_vocab_16e6.txt, optionally gzipped).
type BPETokenizer struct {
	encoder map[string]int64
	ranks   map[[2]string]int
	byteEnc [256]string
	sot     int64
	eot     int64

	mu    sync.Mutex
	cache map[string][]string
}

// LoadBPETokenizer reads the merges file at path. Files ending in .gz are decompressed.
func LoadBPETokenizer(path string) (*BPETokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open vocabulary: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return NewBPETokenizer(r)
}

// NewBPETokenizer builds a tokenizer from merges read from r. The first line is a version header.
func NewBPETokenizer(r io.Reader) (*BPETokenizer, error) {
	var merges [][2]string
	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		if len(merges) >= maxMerges {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) != 2 {
			continue
		}
		merges = append(merges, [2]string{parts[0], parts[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}

	t := &BPETokenizer{
		byteEnc: bytesToUnicode(),
		ranks:   make(map[[2]string]int, len(merges)),
		cache:   make(map[string][]string),
	}
	vocab := make([]string, 0, 512+len(merges)+2)
	order := byteOrder()
	for _, b := range order {
		vocab = append(vocab, t.byteEnc[b])
	}
	for _, b := range order {
		vocab = append(vocab, t.byteEnc[b]+"</w>")
	}
	for i, m := range merges {
		vocab = append(vocab, m[0]+m[1])
		t.ranks[m] = i
	}
	t.encoder = make(map[string]int64, len(vocab)+2)
	for i, v := range vocab {
		t.encoder[v] = int64(i)
	}
	t.sot = int64(len(vocab))
	t.eot = int64(len(vocab) + 1)
	t.encoder["<|startoftext|>"] = t.sot
	t.encoder["<|endoftext|>"] = t.eot
	return t, nil
}

// Tokenize encodes text and frames it in start/end tokens, padded to contextLength.
func (t *BPETokenizer) Tokenize(text string, contextLength int) (inputIDs, attentionMask []int64) {
	return frame(t.Encode(text), t.sot, t.eot, contextLength)
}

// Encode returns the BPE token ids for text without start/end markers.
func (t *BPETokenizer) Encode(text string) []int64 {
	text = strings.ToLower(cleanText(text))
	var ids []int64
	for _, tok := range bpePattern.FindAllString(text, -1) {
		var sb strings.Builder
		for _, b := range []byte(tok) {
			sb.WriteString(t.byteEnc[b])
		}
		for _, piece := range t.bpe(sb.String()) {
			if id, ok := t.encoder[piece]; ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (t *BPETokenizer) bpe(token string) []string {
	t.mu.Lock()
	if cached, ok := t.cache[token]; ok {
		t.mu.Unlock()
		return cached
	}
	t.mu.Unlock()

	runes := []rune(token)
	word := make([]string, len(runes))
	for i, r := range runes {
		word[i] = string(r)
	}
	word[len(word)-1] += "</w>"

	for len(word) > 1 {
		best, bestRank := -1, math.MaxInt
		for i := 0; i < len(word)-1; i++ {
			if rank, ok := t.ranks[[2]string{word[i], word[i+1]}]; ok && rank < bestRank {
				best, bestRank = i, rank
			}
		}
		if best < 0 {
			break
		}
		first, second := word[best], word[best+1]
		merged := make([]string, 0, len(word))
		for i := 0; i < len(word); {
			if i < len(word)-1 && word[i] == first && word[i+1] == second {
				merged = append(merged, first+second)
				i += 2
				continue
			}
			merged = append(merged, word[i])
			i++
		}
		word = merged
	}

	t.mu.Lock()
	t.cache[token] = word
	t.mu.Unlock()
	return word
}

func cleanText(text string) string {
	text = html.UnescapeString(html.UnescapeString(text))
	return strings.Join(strings.Fields(text), " ")
}

// byteOrder lists bytes printable-first, the order the CLIP vocabulary enumerates them.
func byteOrder() []int {
	order := make([]int, 0, 256)
	seen := [256]bool{}
	for _, rng := range [][2]int{{'!', '~'}, {0xA1, 0xAC}, {0xAE, 0xFF}} {
		for b := rng[0]; b <= rng[1]; b++ {
			order = append(order, b)
			seen[b] = true
		}
	}
	for b := 0; b < 256; b++ {
		if !seen[b] {
			order = append(order, b)
		}
	}
	return order
}

// bytesToUnicode maps every byte to a printable rune so BPE never sees whitespace or control bytes.
func bytesToUnicode() [256]string {
	var table [256]string
	n := 0
	order := byteOrder()
	for i, b := range order {
		if i < 188 {
			table[b] = string(rune(b))
			continue
		}
		table[b] = string(rune(256 + n))
		n++
	}
	return table
}
