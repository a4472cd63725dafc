package parser

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"ratingsync/pkg/player"
)

// ErrMalformed is wrapped by every parse failure
var ErrMalformed = errors.New("malformed player response")

// ParsePlayerResponse decodes a ranking service player body into a Record
func ParsePlayerResponse(data []byte) (*player.Record, error) {
	var root struct {
		ID       *int64          `json:"id"`
		Name     string          `json:"name"`
		Platform string          `json:"platform"`
		Tags     []player.Tag    `json:"tags"`
		Ratings  json.RawMessage `json:"ratings"`
	}

	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: unmarshal envelope: %v", ErrMalformed, err)
	}
	if root.ID == nil {
		return nil, fmt.Errorf("%w: missing player id", ErrMalformed)
	}

	// match_count and top_rating are optional; top_rating is either a bare
	// number or an object carrying "value"
	var ratings []struct {
		Character  string      `json:"character"`
		CharShort  string      `json:"char_short"`
		Rating     float64     `json:"rating"`
		Deviation  float64     `json:"deviation"`
		MatchCount *int64      `json:"match_count"`
		TopRating  interface{} `json:"top_rating"`
	}
	if len(root.Ratings) > 0 && string(root.Ratings) != "null" {
		if err := json.Unmarshal(root.Ratings, &ratings); err != nil {
			return nil, fmt.Errorf("%w: ratings: %v", ErrMalformed, err)
		}
	}

	record := &player.Record{
		ID:       *root.ID,
		Name:     root.Name,
		Platform: root.Platform,
		Tags:     root.Tags,
	}
	for _, r := range ratings {
		record.Ratings = append(record.Ratings, player.Rating{
			Character:  r.Character,
			CharShort:  r.CharShort,
			Rating:     r.Rating,
			Deviation:  r.Deviation,
			MatchCount: r.MatchCount,
			TopRating:  parseFloat(r.TopRating),
		})
	}

	return record, nil
}

func parseFloat(v interface{}) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case map[string]interface{}:
		if f, ok := t["value"].(float64); ok {
			return &f
		}
	}
	return nil
}
