package services

import (
	"context"
	"errors"
	"math"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/wandertours/apiserver/internal/store"
	"github.com/wandertours/apiserver/types"
)

const (
	defaultRatingsAverage  = 4.5
	defaultRatingsQuantity = 0
)

// reviewSansAuthor omits the user field so service-internal reads decode
// without the author join.
var reviewSansAuthor = bson.D{{Key: "user", Value: 0}}

// ReviewRepository defines the persistence operations review writes need.
type ReviewRepository interface {
	FindOne(ctx context.Context, filter bson.M, projection bson.D) (types.Review, error)
	Insert(ctx context.Context, fields map[string]any, joins ...store.Join) (types.Review, error)
	UpdateByID(ctx context.Context, id string, fields map[string]any, joins ...store.Join) (types.Review, error)
	Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.M, error)
}

// TourRatingsWriter applies recomputed rating aggregates to a tour record.
type TourRatingsWriter interface {
	UpdateRaw(ctx context.Context, filter, update bson.M) error
}

// ReviewService owns review writes and keeps tour rating aggregates in sync.
type ReviewService struct {
	reviews ReviewRepository
	tours   TourRatingsWriter
}

func NewReviewService(reviews ReviewRepository, tours TourRatingsWriter) *ReviewService {
	return &ReviewService{reviews: reviews, tours: tours}
}

// Upsert creates the caller's review of a tour, or updates the existing one
// when the (tour, user) pair already has a review. The unique index rejects
// the duplicate when two creates race; the loser retries as an update.
// Returns the stored review and whether it was newly created.
func (s *ReviewService) Upsert(ctx context.Context, doc map[string]any) (types.Review, bool, error) {
	pairFilter := bson.M{"tour": doc["tour"], "user": doc["user"]}

	existing, err := s.reviews.FindOne(ctx, pairFilter, reviewSansAuthor)
	switch {
	case err == nil:
		return s.updateExisting(ctx, existing.ID, doc)
	case !errors.Is(err, store.ErrNotFound):
		return types.Review{}, false, err
	}

	created, err := s.reviews.Insert(ctx, doc, ReviewAuthorJoin)
	if errors.Is(err, store.ErrDuplicate) {
		existing, err := s.reviews.FindOne(ctx, pairFilter, reviewSansAuthor)
		if err != nil {
			return types.Review{}, false, err
		}
		return s.updateExisting(ctx, existing.ID, doc)
	}
	if err != nil {
		return types.Review{}, false, err
	}

	if err := s.SyncTourRatings(ctx, created.Tour); err != nil {
		return types.Review{}, false, err
	}
	return created, true, nil
}

func (s *ReviewService) updateExisting(ctx context.Context, id bson.ObjectID, doc map[string]any) (types.Review, bool, error) {
	fields := map[string]any{}
	if review, ok := doc["review"]; ok {
		fields["review"] = review
	}
	if rating, ok := doc["rating"]; ok {
		fields["rating"] = rating
	}

	updated, err := s.reviews.UpdateByID(ctx, id.Hex(), fields, ReviewAuthorJoin)
	if err != nil {
		return types.Review{}, false, err
	}
	if err := s.SyncTourRatings(ctx, updated.Tour); err != nil {
		return types.Review{}, false, err
	}
	return updated, false, nil
}

// SyncTourRatings recomputes a tour's ratingsAverage and ratingsQuantity
// from its reviews. With no reviews left, the defaults are restored.
func (s *ReviewService) SyncTourRatings(ctx context.Context, tourID bson.ObjectID) error {
	stats, err := s.reviews.Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"tour": tourID}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":       "$tour",
			"nRating":   bson.M{"$sum": 1},
			"avgRating": bson.M{"$avg": "$rating"},
		}}},
	})
	if err != nil {
		return err
	}

	quantity := float64(defaultRatingsQuantity)
	average := float64(defaultRatingsAverage)
	if len(stats) > 0 {
		quantity = asFloat(stats[0]["nRating"])
		average = math.Round(asFloat(stats[0]["avgRating"])*10) / 10
	}

	err = s.tours.UpdateRaw(ctx, bson.M{"_id": tourID}, bson.M{"$set": bson.M{
		"ratingsQuantity": quantity,
		"ratingsAverage":  average,
	}})
	if errors.Is(err, store.ErrNotFound) {
		// The tour may have been deleted concurrently; nothing to sync.
		return nil
	}
	return err
}

func asFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
