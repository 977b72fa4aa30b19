package model

// EngagementStats counts substantive conversations per bucket.
type EngagementStats struct {
	CurrentWeek  int `json:"current_week"`
	PreviousWeek int `json:"previous_week"`
	Today        int `json:"today"`
	Yesterday    int `json:"yesterday"`
}

// Targets are the engagement goals configured on a profile.
type Targets struct {
	Daily  int `json:"daily"`
	Weekly int `json:"weekly"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Targets Targets         `json:"targets"`
	Stats   EngagementStats `json:"stats"`
	Pruned  int64           `json:"pruned,omitempty"`
}
