package services

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/wandertours/apiserver/internal/store"
	"github.com/wandertours/apiserver/types"
)

// fakeReviewRepo is an in-memory ReviewRepository. It can simulate the
// window where a lookup misses while a concurrent insert has already
// claimed the unique (tour, user) pair.
type fakeReviewRepo struct {
	reviews         map[string]types.Review
	stats           []bson.M
	insertErr       error
	insertCalls     int
	lastUpdate      map[string]any
	missFirstLookup bool
}

func newFakeReviewRepo() *fakeReviewRepo {
	return &fakeReviewRepo{reviews: map[string]types.Review{}}
}

func (f *fakeReviewRepo) FindOne(_ context.Context, filter bson.M, _ bson.D) (types.Review, error) {
	if f.missFirstLookup {
		f.missFirstLookup = false
		return types.Review{}, store.ErrNotFound
	}
	tour, _ := filter["tour"].(bson.ObjectID)
	user, _ := filter["user"].(bson.ObjectID)
	for _, review := range f.reviews {
		if review.Tour == tour && review.User.ID == user {
			return review, nil
		}
	}
	return types.Review{}, store.ErrNotFound
}

func (f *fakeReviewRepo) Insert(_ context.Context, fields map[string]any, _ ...store.Join) (types.Review, error) {
	f.insertCalls++
	if f.insertErr != nil {
		return types.Review{}, f.insertErr
	}
	review := types.Review{
		ID:   bson.NewObjectID(),
		Tour: fields["tour"].(bson.ObjectID),
		User: types.ReviewAuthor{ID: fields["user"].(bson.ObjectID)},
	}
	if text, ok := fields["review"].(string); ok {
		review.Review = text
	}
	if rating, ok := fields["rating"].(float64); ok {
		review.Rating = rating
	}
	f.reviews[review.ID.Hex()] = review
	return review, nil
}

func (f *fakeReviewRepo) UpdateByID(_ context.Context, id string, fields map[string]any, _ ...store.Join) (types.Review, error) {
	review, ok := f.reviews[id]
	if !ok {
		return types.Review{}, store.ErrNotFound
	}
	f.lastUpdate = fields
	if text, ok := fields["review"].(string); ok {
		review.Review = text
	}
	if rating, ok := fields["rating"].(float64); ok {
		review.Rating = rating
	}
	f.reviews[id] = review
	return review, nil
}

func (f *fakeReviewRepo) Aggregate(_ context.Context, _ mongo.Pipeline) ([]bson.M, error) {
	return f.stats, nil
}

// fakeTourWriter records the rating fields the service writes back.
type fakeTourWriter struct {
	lastSet bson.M
	err     error
}

func (f *fakeTourWriter) UpdateRaw(_ context.Context, _, update bson.M) error {
	if f.err != nil {
		return f.err
	}
	f.lastSet, _ = update["$set"].(bson.M)
	return nil
}

func reviewDoc(tour, user bson.ObjectID, text string, rating float64) map[string]any {
	return map[string]any{"tour": tour, "user": user, "review": text, "rating": rating}
}

func TestUpsertCreates(t *testing.T) {
	repo := newFakeReviewRepo()
	repo.stats = []bson.M{{"nRating": int32(1), "avgRating": 4.0}}
	tours := &fakeTourWriter{}
	svc := NewReviewService(repo, tours)

	tour, user := bson.NewObjectID(), bson.NewObjectID()
	review, created, err := svc.Upsert(context.Background(), reviewDoc(tour, user, "Loved it", 4))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !created {
		t.Fatalf("expected a fresh review")
	}
	if review.Rating != 4 || review.Tour != tour {
		t.Fatalf("unexpected review: %+v", review)
	}

	// The tour's aggregates follow the review write.
	if tours.lastSet["ratingsQuantity"] != 1.0 || tours.lastSet["ratingsAverage"] != 4.0 {
		t.Fatalf("unexpected rating sync: %v", tours.lastSet)
	}
}

func TestUpsertSecondReviewUpdates(t *testing.T) {
	repo := newFakeReviewRepo()
	repo.stats = []bson.M{{"nRating": int32(1), "avgRating": 5.0}}
	tours := &fakeTourWriter{}
	svc := NewReviewService(repo, tours)

	tour, user := bson.NewObjectID(), bson.NewObjectID()
	first, created, err := svc.Upsert(context.Background(), reviewDoc(tour, user, "Okay", 3))
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}

	second, created, err := svc.Upsert(context.Background(), reviewDoc(tour, user, "Changed my mind", 5))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Fatalf("expected update, not a second review")
	}
	if second.ID != first.ID {
		t.Fatalf("expected the existing review, got %s vs %s", second.ID.Hex(), first.ID.Hex())
	}
	if second.Rating != 5 || second.Review != "Changed my mind" {
		t.Fatalf("update not applied: %+v", second)
	}
	if repo.insertCalls != 1 {
		t.Fatalf("expected one insert, got %d", repo.insertCalls)
	}

	// Only the review text and rating may change on the update path.
	for field := range repo.lastUpdate {
		if field != "review" && field != "rating" {
			t.Fatalf("unexpected field in update: %q", field)
		}
	}
}

func TestUpsertDuplicateRace(t *testing.T) {
	repo := newFakeReviewRepo()
	repo.stats = []bson.M{{"nRating": int32(1), "avgRating": 2.0}}
	tours := &fakeTourWriter{}
	svc := NewReviewService(repo, tours)

	tour, user := bson.NewObjectID(), bson.NewObjectID()
	existing, _, err := svc.Upsert(context.Background(), reviewDoc(tour, user, "First", 4))
	if err != nil {
		t.Fatalf("seed review: %v", err)
	}

	// The pair lookup misses but the unique index rejects the insert, as
	// when two submissions race; the loser must retry as an update.
	repo.missFirstLookup = true
	repo.insertErr = store.ErrDuplicate

	review, created, err := svc.Upsert(context.Background(), reviewDoc(tour, user, "Second", 2))
	if err != nil {
		t.Fatalf("upsert after race: %v", err)
	}
	if created {
		t.Fatalf("expected the race loser to update")
	}
	if review.ID != existing.ID || review.Rating != 2 {
		t.Fatalf("unexpected review: %+v", review)
	}
}

func TestSyncTourRatings(t *testing.T) {
	cases := []struct {
		name         string
		stats        []bson.M
		wantQuantity float64
		wantAverage  float64
	}{
		{"no reviews restores defaults", nil, 0, 4.5},
		{"average rounds to one decimal", []bson.M{{"nRating": int32(3), "avgRating": 4.666666}}, 3, 4.7},
		{"int64 counts", []bson.M{{"nRating": int64(2), "avgRating": 3.0}}, 2, 3.0},
	}
	for _, tc := range cases {
		repo := newFakeReviewRepo()
		repo.stats = tc.stats
		tours := &fakeTourWriter{}
		svc := NewReviewService(repo, tours)

		if err := svc.SyncTourRatings(context.Background(), bson.NewObjectID()); err != nil {
			t.Fatalf("%s: sync: %v", tc.name, err)
		}
		if tours.lastSet["ratingsQuantity"] != tc.wantQuantity {
			t.Fatalf("%s: quantity %v, want %v", tc.name, tours.lastSet["ratingsQuantity"], tc.wantQuantity)
		}
		if tours.lastSet["ratingsAverage"] != tc.wantAverage {
			t.Fatalf("%s: average %v, want %v", tc.name, tours.lastSet["ratingsAverage"], tc.wantAverage)
		}
	}
}

func TestSyncTourRatingsToleratesDeletedTour(t *testing.T) {
	repo := newFakeReviewRepo()
	tours := &fakeTourWriter{err: store.ErrNotFound}
	svc := NewReviewService(repo, tours)

	if err := svc.SyncTourRatings(context.Background(), bson.NewObjectID()); err != nil {
		t.Fatalf("expected deleted tour to be tolerated, got %v", err)
	}
}
