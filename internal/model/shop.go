package model

// Shop is a known coffee shop found by the shop survey.
type Shop struct {
	PlaceID          string  `csv:"place_id" json:"place_id"`
	Name             string  `csv:"name" json:"name"`
	Address          string  `csv:"address" json:"address"`
	Lat              float64 `csv:"lat" json:"lat"`
	Lon              float64 `csv:"lon" json:"lon"`
	County           string  `csv:"county" json:"county"`
	Rating           float64 `csv:"rating" json:"rating"`
	UserRatingsTotal int     `csv:"user_ratings_total" json:"user_ratings_total"`
	PriceLevel       int     `csv:"price_level" json:"price_level"`
	BusinessStatus   string  `csv:"business_status" json:"business_status"`
	Hours            string  `csv:"hours" json:"hours"`     // weekday text joined with " | "
	Reviews          string  `csv:"reviews" json:"reviews"` // review texts joined with " | "
	IsSuccessful     bool    `csv:"is_successful" json:"is_successful"`
}
