package model

import (
	"time"
)

// Review is a user's rating of an expert or a service. Reviews are
// append-only: never edited or deleted.
type Review struct {
	ID         string    `json:"id"`
	ItemID     string    `json:"itemId"`
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName,omitempty"`
	UserAvatar string    `json:"userAvatar,omitempty"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	Date       time.Time `json:"date"`
}

// RatingSeed is the catalog baseline for an item before any submitted review.
type RatingSeed struct {
	BaseRating float64 `json:"baseRating"`
	BaseCount  int     `json:"baseCount"`
}

// Rating is the displayable aggregate for a catalog item.
type Rating struct {
	ItemID  string  `json:"itemId"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// AddReviewRequest is the request to submit a review.
type AddReviewRequest struct {
	ItemID  string `json:"itemId"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}
