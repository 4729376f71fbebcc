package embedding

import (
	"strings"
	"unicode"
)

// CLIP special tokens for the released ViT-B/32 vocabulary.
const (
	StartOfText int64 = 49406
	EndOfText   int64 = 49407
)

// Tokenizer produces CLIP text-encoder inputs padded to contextLength.
type Tokenizer interface {
	Tokenize(text string, contextLength int) (inputIDs, attentionMask []int64)
}

// SimpleTokenizer is a word-split tokenizer with hash-based token IDs. The IDs are not CLIP
// vocabulary IDs; only the mock embedder uses it.
type SimpleTokenizer struct{}

// Tokenize splits text into words and produces padded token IDs up to contextLength.
func (t *SimpleTokenizer) Tokenize(text string, contextLength int) (inputIDs, attentionMask []int64) {
	words := SplitWords(strings.ToLower(text))
	ids := make([]int64, 0, len(words))
	for _, word := range words {
		ids = append(ids, t.TokenID(word))
	}
	return frame(ids, StartOfText, EndOfText, contextLength)
}

// TokenID returns the hash token ID of a single lower-cased word.
func (t *SimpleTokenizer) TokenID(word string) int64 {
	return int64(HashString(word) % int(StartOfText))
}

// frame wraps ids in start/end markers, truncates to contextLength keeping the end marker, and pads with zeros.
func frame(ids []int64, sot, eot int64, contextLength int) (inputIDs, attentionMask []int64) {
	if contextLength < 2 {
		contextLength = 77
	}
	inputIDs = make([]int64, contextLength)
	attentionMask = make([]int64, contextLength)

	inputIDs[0] = sot
	attentionMask[0] = 1
	pos := 1
	for _, id := range ids {
		if pos >= contextLength-1 {
			break
		}
		inputIDs[pos] = id
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = eot
	attentionMask[pos] = 1
	return inputIDs, attentionMask
}

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	return strings.FieldsFunc(text, unicode.IsSpace)
}

// WordCount returns the number of whitespace-separated tokens in text.
func WordCount(text string) int {
	return len(SplitWords(text))
}

// HashString returns a deterministic non-negative hash for use as a simple token ID.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	// math.MinInt negates to itself.
	if h < 0 {
		h = 0
	}
	return h
}
