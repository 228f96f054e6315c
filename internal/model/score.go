package model

// TractScore is a scored tract as persisted to the store and served by the
// API. Probability is nil until a classifier has been applied.
type TractScore struct {
	RunID        string   `json:"run_id,omitempty"`
	TractID      string   `json:"tract_id"`
	City         string   `json:"city"`
	CountyID     string   `json:"county_id,omitempty"`
	Lat          float64  `json:"lat"`
	Lon          float64  `json:"lon"`
	SuccessScore float64  `json:"success_score"`
	Probability  *float64 `json:"success_probability,omitempty"`
}
