package classification

import "time"

// Ride categories. Only ATTRACTION feeds ranking and shame calculations.
const (
	CategoryAttraction   = "ATTRACTION"
	CategoryMeetAndGreet = "MEET_AND_GREET"
	CategoryShow         = "SHOW"
	CategoryExperience   = "EXPERIENCE"
)

// DefaultTierWeight applies when a ride has no tier assigned.
const DefaultTierWeight = 2

// Classification is one cached classifier decision for a ride.
type Classification struct {
	ParkID          int       `json:"park_id"`
	RideID          int       `json:"ride_id"`
	Tier            *int      `json:"tier"`
	Category        string    `json:"category"`
	Confidence      *float64  `json:"confidence,omitempty"`
	Reasoning       string    `json:"reasoning,omitempty"`
	ResearchSources []string  `json:"research_sources,omitempty"`
	SchemaVersion   int       `json:"schema_version"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TierWeight maps a demand tier to its ranking weight. Tier 1 rides count
// triple, tier 2 double, tier 3 single. Unknown tiers use the default.
func TierWeight(tier *int) int {
	if tier == nil {
		return DefaultTierWeight
	}
	switch *tier {
	case 1:
		return 3
	case 2:
		return 2
	case 3:
		return 1
	default:
		return DefaultTierWeight
	}
}

// Weight returns the tier weight for this classification.
func (c *Classification) Weight() int {
	if c == nil {
		return DefaultTierWeight
	}
	return TierWeight(c.Tier)
}

// EffectiveCategory returns the category, defaulting to ATTRACTION when the
// classifier has not decided yet.
func (c *Classification) EffectiveCategory() string {
	if c == nil || c.Category == "" {
		return CategoryAttraction
	}
	return c.Category
}
