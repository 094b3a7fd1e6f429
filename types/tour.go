package types

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// GeoPoint is a GeoJSON point with descriptive metadata.
type GeoPoint struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
	Address     string    `json:"address,omitempty" bson:"address,omitempty"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
}

// TourLocation is a stop on a tour itinerary.
type TourLocation struct {
	GeoPoint `bson:",inline"`
	Day      int `json:"day,omitempty" bson:"day,omitempty"`
}

// Tour represents a bookable tour.
type Tour struct {
	// ID is the unique identifier of the tour.
	ID bson.ObjectID `json:"id" bson:"_id,omitempty"`

	// Name is the unique display name, 10 to 40 characters.
	Name string `json:"name" bson:"name"`

	// Slug is derived from Name at create/update time.
	Slug string `json:"slug,omitempty" bson:"slug,omitempty"`

	// Duration is the length of the tour in days.
	Duration float64 `json:"duration" bson:"duration"`

	// MaxGroupSize is the maximum number of participants.
	MaxGroupSize float64 `json:"maxGroupSize" bson:"maxGroupSize"`

	// Difficulty is one of easy, medium or difficult.
	Difficulty string `json:"difficulty" bson:"difficulty"`

	// RatingsAverage is the mean review rating, kept in sync by the review
	// service and rounded to one decimal.
	RatingsAverage float64 `json:"ratingsAverage" bson:"ratingsAverage"`

	// RatingsQuantity is the number of reviews behind RatingsAverage.
	RatingsQuantity float64 `json:"ratingsQuantity" bson:"ratingsQuantity"`

	// Price is the list price per participant.
	Price float64 `json:"price" bson:"price"`

	// PriceDiscount, when set, must be below Price.
	PriceDiscount float64 `json:"priceDiscount,omitempty" bson:"priceDiscount,omitempty"`

	// Summary is a short marketing line.
	Summary string `json:"summary" bson:"summary"`

	// Description is the full tour description.
	Description string `json:"description,omitempty" bson:"description,omitempty"`

	// ImageCover is the cover image file name.
	ImageCover string `json:"imageCover" bson:"imageCover"`

	// Images are additional image file names.
	Images []string `json:"images,omitempty" bson:"images,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`

	// StartDates are the scheduled departures.
	StartDates []time.Time `json:"startDates,omitempty" bson:"startDates,omitempty"`

	// SecretTour marks internal tours excluded from public queries.
	SecretTour bool `json:"secretTour,omitempty" bson:"secretTour,omitempty"`

	// StartLocation is where the tour begins.
	StartLocation *GeoPoint `json:"startLocation,omitempty" bson:"startLocation,omitempty"`

	// Locations is the itinerary.
	Locations []TourLocation `json:"locations,omitempty" bson:"locations,omitempty"`

	// Guides holds the guide user records. Stored as ObjectID references
	// and resolved through a join directive on every read.
	Guides []User `json:"guides,omitempty" bson:"guides,omitempty"`

	// Reviews is resolved on single-tour reads only.
	Reviews []Review `json:"reviews,omitempty" bson:"reviews,omitempty"`
}

// TourDifficulties are the accepted difficulty values.
var TourDifficulties = []string{"easy", "medium", "difficult"}

// TourSchema declares validation and query rules for tours.
var TourSchema = Schema{
	Collection: "tours",
	Required: map[string]string{
		"name":         "A tour must have a name",
		"duration":     "A tour must have a duration",
		"maxGroupSize": "A tour must have a group size",
		"difficulty":   "A tour must have a difficulty",
		"price":        "A tour must have a price",
		"summary":      "A tour must have a summary",
		"imageCover":   "A tour must have a cover image",
	},
	Rules: map[string]FieldRule{
		"name": combineRules(
			ruleMinLen(10, "A tour name must have at least 10 characters"),
			ruleMaxLen(40, "A tour name must have at most 40 characters"),
		),
		"difficulty":     ruleEnum("Difficulty is either easy, medium or difficult", TourDifficulties...),
		"ratingsAverage": ruleRange(1, 5, "Rating must be between 1.0 and 5.0"),
		"priceDiscount":  discountBelowPrice,
	},
	Defaults: map[string]func() any{
		"ratingsAverage":  func() any { return 4.5 },
		"ratingsQuantity": func() any { return 0.0 },
		"secretTour":      func() any { return false },
		"createdAt":       func() any { return time.Now().UTC() },
	},
	Filterable: map[string]bool{
		"name": true, "slug": true, "duration": true, "maxGroupSize": true,
		"difficulty": true, "ratingsAverage": true, "ratingsQuantity": true,
		"price": true, "priceDiscount": true,
	},
	Numeric: map[string]bool{
		"duration": true, "maxGroupSize": true, "ratingsAverage": true,
		"ratingsQuantity": true, "price": true, "priceDiscount": true,
	},
	Refs:  map[string]bool{"guides": true},
	Times: map[string]bool{"createdAt": true, "startDates": true},
}

func discountBelowPrice(value any, doc map[string]any) error {
	discount, err := coerceNumber(value)
	if err != nil {
		return fmt.Errorf("Discount price must be a number")
	}
	price, err := coerceNumber(doc["price"])
	if err == nil && discount >= price {
		return fmt.Errorf("Discount price (%v) should be below regular price", value)
	}
	return nil
}
