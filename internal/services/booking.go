package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/wandertours/apiserver/internal/store"
	"github.com/wandertours/apiserver/types"
)

// BookingService creates checkout bookings.
type BookingService struct {
	bookings *store.Collection[types.Booking]
	tours    *store.Collection[types.Tour]
}

func NewBookingService(bookings *store.Collection[types.Booking], tours *store.Collection[types.Tour]) *BookingService {
	return &BookingService{bookings: bookings, tours: tours}
}

// CreateCheckout books a tour for the given user at the tour's current list
// price. The price is captured at checkout time so later price changes do
// not affect existing bookings.
func (s *BookingService) CreateCheckout(ctx context.Context, tourID string, userID bson.ObjectID) (types.Booking, error) {
	tour, err := s.tours.FindByID(ctx, tourID, PublicTourScope)
	if err != nil {
		return types.Booking{}, err
	}

	doc := map[string]any{
		"tour":      tour.ID,
		"user":      userID,
		"price":     tour.Price,
		"paid":      true,
		"createdAt": time.Now().UTC(),
	}
	return s.bookings.Insert(ctx, doc, BookingUserJoin, BookingTourJoin)
}
