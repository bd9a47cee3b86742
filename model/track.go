package model

import "time"

// Track represents a purchasable audio track in the catalog.
// Tracks are immutable once ingested; price changes are out of scope.
type Track struct {
	ID           string    `json:"trackId"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	Description  string    `json:"description"`
	AudioPath    string    `json:"-"`        // Path to the original audio file, never exposed in API responses
	CoverPath    string    `json:"coverUrl"` // Relative path to cover art, served via the public file route
	Price        float64   `json:"price"`    // Price in USD
	ArtistWallet string    `json:"-"`        // Payout address, settlement use only
	CreatedAt    time.Time `json:"createdAt"`
}

// PublicView 返回可公开的曲目字段（目录列表用）
func (t *Track) PublicView() map[string]interface{} {
	return map[string]interface{}{
		"trackId":     t.ID,
		"title":       t.Title,
		"artist":      t.Artist,
		"description": t.Description,
		"coverUrl":    t.CoverPath,
		"price":       t.Price,
		"createdAt":   t.CreatedAt,
	}
}
