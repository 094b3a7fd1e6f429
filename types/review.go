package types

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Review is a user's rating of a tour. A user may hold at most one review
// per tour, enforced by a unique (tour, user) index.
type Review struct {
	// ID is the unique identifier of the review.
	ID bson.ObjectID `json:"id" bson:"_id,omitempty"`

	// Review is the review text.
	Review string `json:"review" bson:"review"`

	// Rating is the score, 1 to 5.
	Rating float64 `json:"rating" bson:"rating"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`

	// Tour references the reviewed tour.
	Tour bson.ObjectID `json:"tour" bson:"tour"`

	// User holds the author. Stored as an ObjectID reference and resolved
	// to a name/photo summary through a join directive on reads.
	User ReviewAuthor `json:"user" bson:"user,omitempty"`
}

// ReviewAuthor is the joined name/photo summary of a review's author.
type ReviewAuthor struct {
	ID    bson.ObjectID `json:"id" bson:"_id,omitempty"`
	Name  string        `json:"name,omitempty" bson:"name,omitempty"`
	Photo string        `json:"photo,omitempty" bson:"photo,omitempty"`
}

// ReviewSchema declares validation and query rules for reviews.
var ReviewSchema = Schema{
	Collection: "reviews",
	Required: map[string]string{
		"review": "Review cannot be empty",
		"tour":   "A review must belong to a tour",
		"user":   "A review must belong to a user",
	},
	Rules: map[string]FieldRule{
		"rating": ruleRange(1, 5, "Rating must be between 1.0 and 5.0"),
	},
	Defaults: map[string]func() any{
		"createdAt": func() any { return time.Now().UTC() },
	},
	Filterable: map[string]bool{
		"rating": true, "tour": true, "user": true,
	},
	Numeric: map[string]bool{"rating": true},
	Refs:    map[string]bool{"tour": true, "user": true},
	Times:   map[string]bool{"createdAt": true},
}
