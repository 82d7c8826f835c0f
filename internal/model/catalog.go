package model

// Expert is a bookable specialist from the read-only catalog.
type Expert struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Title    string  `json:"title"`
	Image    string  `json:"image"`
	Category string  `json:"category"`
	Rating   float64 `json:"rating"`
	Price    int     `json:"price"`
}

// Service is a catalog offering that can be reviewed.
type Service struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Link        string  `json:"link"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"reviewCount"`
}

// RatedExpert is an expert with its aggregated rating.
type RatedExpert struct {
	Expert
	ReviewCount int `json:"reviewCount"`
}
