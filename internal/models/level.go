package models

// Level is one row of the static per-user-type level catalog. Thresholds
// ascend with LevelNumber; the engine never mutates this table.
type Level struct {
	UserType       string   `json:"user_type"`
	LevelNumber    int      `json:"level_number"`
	PointsRequired int      `json:"points_required"`
	Name           string   `json:"name"`
	Rewards        []Reward `json:"rewards,omitempty"`
}

// LevelProgress is the balance view derived from an account and the catalog.
type LevelProgress struct {
	Points             int     `json:"points"`
	Level              int     `json:"level"`
	LevelName          string  `json:"level_name"`
	ProgressPercentage float64 `json:"progress_percentage"`
	PointsToNextLevel  int     `json:"points_to_next_level"`
}
