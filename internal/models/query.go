package models

import "fmt"

// SearchQuery is the non-image part of a retrieval request. The query image travels separately.
type SearchQuery struct {
	Text string `json:"text,omitempty"`
	K    int    `json:"k,omitempty"`
}

// Validate applies the default result count and rejects counts above maxK.
func (q *SearchQuery) Validate(defaultK, maxK int) error {
	if q.K < 0 {
		return fmt.Errorf("k must not be negative, got %d", q.K)
	}
	if q.K == 0 {
		q.K = defaultK
	}
	if maxK > 0 && q.K > maxK {
		return fmt.Errorf("k must be at most %d, got %d", maxK, q.K)
	}
	return nil
}
