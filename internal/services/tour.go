package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/wandertours/apiserver/internal/query"
	"github.com/wandertours/apiserver/internal/store"
	"github.com/wandertours/apiserver/types"
)

// Earth radii used to convert a distance to $centerSphere radians.
const (
	earthRadiusMiles = 3963.2
	earthRadiusKm    = 6378.1
)

// TourService provides the analytics and geospatial tour queries.
type TourService struct {
	tours *store.Collection[types.Tour]
}

func NewTourService(tours *store.Collection[types.Tour]) *TourService {
	return &TourService{tours: tours}
}

// Stats groups highly-rated tours (ratingsAverage >= 4.5) by difficulty and
// reports counts and price/rating aggregates per group.
func (s *TourService) Stats(ctx context.Context) ([]bson.M, error) {
	return s.tours.Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"ratingsAverage": bson.M{"$gte": 4.5}}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":           "$difficulty",
			"numTours":      bson.M{"$sum": 1},
			"numRatings":    bson.M{"$sum": "$ratingsQuantity"},
			"averageRating": bson.M{"$avg": "$ratingsAverage"},
			"averagePrice":  bson.M{"$avg": "$price"},
			"minPrice":      bson.M{"$min": "$price"},
			"maxPrice":      bson.M{"$max": "$price"},
		}}},
		bson.D{{Key: "$sort", Value: bson.M{"averagePrice": 1}}},
	})
}

// MonthlyPlan reports, per month of the given year, how many tours start and
// which ones, busiest month first.
func (s *TourService) MonthlyPlan(ctx context.Context, year int) ([]bson.M, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)

	return s.tours.Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$unwind", Value: "$startDates"}},
		bson.D{{Key: "$match", Value: bson.M{
			"startDates": bson.M{"$gte": from, "$lte": to},
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":           bson.M{"$month": "$startDates"},
			"numTourStarts": bson.M{"$sum": 1},
			"tours":         bson.M{"$push": "$name"},
		}}},
		bson.D{{Key: "$addFields", Value: bson.M{"month": "$_id"}}},
		bson.D{{Key: "$project", Value: bson.M{"_id": 0}}},
		bson.D{{Key: "$sort", Value: bson.M{"numTourStarts": -1}}},
		bson.D{{Key: "$limit", Value: 12}},
	})
}

// Within returns the public tours whose start location lies inside the
// sphere centered on (lat, lng) with the given radius. Unit is "mi" or "km".
func (s *TourService) Within(ctx context.Context, distance, lat, lng float64, unit string) ([]types.Tour, error) {
	radius := distance / earthRadiusKm
	if unit == "mi" {
		radius = distance / earthRadiusMiles
	}

	spec := query.Spec{
		Filter: bson.M{
			"startLocation": bson.M{
				"$geoWithin": bson.M{"$centerSphere": bson.A{bson.A{lng, lat}, radius}},
			},
		},
	}
	return s.tours.Find(ctx, spec.WithFilter(PublicTourScope), GuidesJoin)
}

// Distances reports the distance from (lat, lng) to every tour's start
// location, in the requested unit.
func (s *TourService) Distances(ctx context.Context, lat, lng float64, unit string) ([]bson.M, error) {
	multiplier := 0.001
	if unit == "mi" {
		multiplier = 0.000621371
	}

	return s.tours.Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$geoNear", Value: bson.M{
			"near":               bson.M{"type": "Point", "coordinates": bson.A{lng, lat}},
			"distanceField":      "distance",
			"distanceMultiplier": multiplier,
			"spherical":          true,
		}}},
		bson.D{{Key: "$project", Value: bson.M{"distance": 1, "name": 1}}},
	})
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL-safe slug from a tour name.
func Slugify(name string) string {
	slug := slugStrip.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}

// ParseLatLng splits a "lat,lng" path segment.
func ParseLatLng(raw string) (lat, lng float64, err error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected lat,lng, got %q", raw)
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[0]), "%f", &lat); err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q", parts[0])
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%f", &lng); err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q", parts[1])
	}
	return lat, lng, nil
}
