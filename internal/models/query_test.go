package models

import (
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *SearchQuery
		wantK   int
		wantErr bool
	}{
		{"sets default k", &SearchQuery{K: 0}, 12, false},
		{"keeps explicit k", &SearchQuery{K: 5, Text: "red"}, 5, false},
		{"accepts max k", &SearchQuery{K: 100}, 100, false},
		{"rejects k above max", &SearchQuery{K: 200}, 0, true},
		{"rejects negative k", &SearchQuery{K: -1}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate(12, 100)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.query.K != tt.wantK {
				t.Errorf("K = %d, want %d", tt.query.K, tt.wantK)
			}
		})
	}
}
