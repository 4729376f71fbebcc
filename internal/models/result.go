package models

// SearchResult is a single catalog hit.
type SearchResult struct {
	Path string `json:"path"`
	// ProductID is derived from Path and stays stable across rebuilds.
	ProductID string  `json:"product_id"`
	Score     float64 `json:"score"`
	// Index is the row of the hit in the embedding store.
	Index int `json:"index"`
	Rank  int `json:"rank"`
}

// SearchResponse is the response for a retrieval request.
type SearchResponse struct {
	Results []*SearchResult `json:"results"`
	// Alpha is the text weight used to fuse the query; 0 for image-only queries.
	Alpha     float64 `json:"alpha"`
	Total     int     `json:"total"`
	QueryTime int64   `json:"query_time_ms"`
	Text      string  `json:"text,omitempty"`
}
