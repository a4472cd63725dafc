package player

import "strconv"

// ID identifies a tracked player on the ranking service. The ledger stores
// the full uint64 range; the service itself and the PostgreSQL mirror only
// hold ids up to math.MaxInt64.
type ID uint64

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses a decimal player id
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

// Record is the ranking service's snapshot of one player
type Record struct {
	ID       int64    `json:"id" bson:"id"`
	Name     string   `json:"name" bson:"name"`
	Platform string   `json:"platform,omitempty" bson:"platform"`
	Tags     []Tag    `json:"tags,omitempty" bson:"tags"`
	Ratings  []Rating `json:"ratings,omitempty" bson:"ratings"`
}

// Tag is a badge attached to a player by the ranking service
type Tag struct {
	Tag   string `json:"tag" bson:"tag"`
	Style string `json:"style,omitempty" bson:"style"`
}

// Rating holds one character rating category of a player
type Rating struct {
	Character  string   `json:"character" bson:"character"`
	CharShort  string   `json:"char_short" bson:"char_short"`
	Rating     float64  `json:"rating" bson:"rating"`
	Deviation  float64  `json:"deviation" bson:"deviation"`
	MatchCount *int64   `json:"match_count,omitempty" bson:"match_count"`
	TopRating  *float64 `json:"top_rating,omitempty" bson:"top_rating"`
}

// TotalMatches sums the match counts of every rating category.
// Absent or negative counts contribute zero.
func (r *Record) TotalMatches() uint64 {
	if r == nil {
		return 0
	}
	var total uint64
	for _, rating := range r.Ratings {
		if rating.MatchCount == nil || *rating.MatchCount < 0 {
			continue
		}
		total += uint64(*rating.MatchCount)
	}
	return total
}

// TopRating returns the highest rating across categories, or 0 when there are none
func (r *Record) TopRating() float64 {
	if r == nil {
		return 0
	}
	var top float64
	for _, rating := range r.Ratings {
		if rating.Rating > top {
			top = rating.Rating
		}
	}
	return top
}

// Status is the per-player bookkeeping kept in the status table
type Status struct {
	LastAttempt int64  `bson:"last_attempt"`
	LastSuccess int64  `bson:"last_success"`
	LastError   string `bson:"last_error"`
	Failures    uint32 `bson:"failures"`
}
