package types

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Booking records a paid (or pending) reservation of a tour by a user.
type Booking struct {
	// ID is the unique identifier of the booking.
	ID bson.ObjectID `json:"id" bson:"_id,omitempty"`

	// Tour holds the booked tour. Stored as an ObjectID reference and
	// resolved to a name summary through a join directive on reads.
	Tour BookedTour `json:"tour" bson:"tour,omitempty"`

	// User holds the booking owner, resolved the same way.
	User ReviewAuthor `json:"user" bson:"user,omitempty"`

	// Price is the amount charged at checkout time.
	Price float64 `json:"price" bson:"price"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`

	// Paid is false for bookings created manually ahead of payment.
	Paid *bool `json:"paid" bson:"paid,omitempty"`
}

// BookedTour is the joined name summary of a booking's tour.
type BookedTour struct {
	ID   bson.ObjectID `json:"id" bson:"_id,omitempty"`
	Name string        `json:"name,omitempty" bson:"name,omitempty"`
}

// BookingSchema declares validation and query rules for bookings.
var BookingSchema = Schema{
	Collection: "bookings",
	Required: map[string]string{
		"tour":  "Booking must belong to a tour",
		"user":  "Booking must belong to a user",
		"price": "Booking must have a price",
	},
	Rules: map[string]FieldRule{},
	Defaults: map[string]func() any{
		"paid":      func() any { return true },
		"createdAt": func() any { return time.Now().UTC() },
	},
	Filterable: map[string]bool{
		"tour": true, "user": true, "price": true, "paid": true,
	},
	Numeric: map[string]bool{"price": true},
	Refs:    map[string]bool{"tour": true, "user": true},
	Times:   map[string]bool{"createdAt": true},
}
