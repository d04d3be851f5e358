package model

import (
	"strings"
	"time"
)

// Asset is a single uniquely identified scaffolding piece.
type Asset struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Asset statuses.
const (
	AssetAvailable = "available"
	AssetOnLoan    = "on_loan"
)

// DefaultIDWidth is the number of digits of an asset identifier.
const DefaultIDWidth = 4

// ModelSummary counts the pieces of one model.
type ModelSummary struct {
	Model     string `json:"model"`
	Total     int    `json:"total"`
	Available int    `json:"available"`
	OnLoan    int    `json:"on_loan"`
}

// NormalizeModel returns the matching key of a model name: trimmed, lower
// case, with runs of whitespace collapsed to one space.
func NormalizeModel(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// SameModel reports whether two model names refer to the same model.
func SameModel(a, b string) bool {
	return NormalizeModel(a) == NormalizeModel(b)
}

// ValidAssetID reports whether id is exactly width ASCII digits. Identifiers
// stay strings so leading zeros survive.
func ValidAssetID(id string, width int) bool {
	if len(id) != width {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}
