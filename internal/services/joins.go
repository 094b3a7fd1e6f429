package services

import (
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/wandertours/apiserver/internal/store"
)

// Query scopes applied to every read of the affected resource.
var (
	// ActiveUserScope excludes soft-deleted accounts.
	ActiveUserScope = bson.M{"active": bson.M{"$ne": false}}

	// PublicTourScope excludes secret tours.
	PublicTourScope = bson.M{"secretTour": bson.M{"$ne": true}}
)

// Join directives shared by handlers and services.
var (
	// GuidesJoin resolves a tour's guide references into user records,
	// with credential fields stripped.
	GuidesJoin = store.Join{
		From:         "users",
		LocalField:   "guides",
		ForeignField: "_id",
		As:           "guides",
		Project: bson.D{
			{Key: "password", Value: 0},
			{Key: "passwordChangedAt", Value: 0},
			{Key: "passwordResetToken", Value: 0},
			{Key: "passwordResetExpires", Value: 0},
		},
	}

	// ReviewAuthorJoin resolves a review's user reference into a
	// name/photo summary.
	ReviewAuthorJoin = store.Join{
		From:         "users",
		LocalField:   "user",
		ForeignField: "_id",
		As:           "user",
		Single:       true,
		Project:      bson.D{{Key: "name", Value: 1}, {Key: "photo", Value: 1}},
	}

	// TourReviewsJoin resolves the reviews of a tour, each with its
	// author summary, for single-tour reads.
	TourReviewsJoin = store.Join{
		From:         "reviews",
		LocalField:   "_id",
		ForeignField: "tour",
		As:           "reviews",
		Pipeline: mongo.Pipeline{
			bson.D{{Key: "$lookup", Value: bson.M{
				"from":         "users",
				"localField":   "user",
				"foreignField": "_id",
				"as":           "user",
				"pipeline":     []bson.M{{"$project": bson.M{"name": 1, "photo": 1}}},
			}}},
			bson.D{{Key: "$set", Value: bson.M{"user": bson.M{"$first": "$user"}}}},
		},
	}

	// BookingUserJoin and BookingTourJoin resolve a booking's references.
	BookingUserJoin = store.Join{
		From:         "users",
		LocalField:   "user",
		ForeignField: "_id",
		As:           "user",
		Single:       true,
		Project:      bson.D{{Key: "name", Value: 1}, {Key: "photo", Value: 1}},
	}
	BookingTourJoin = store.Join{
		From:         "tours",
		LocalField:   "tour",
		ForeignField: "_id",
		As:           "tour",
		Single:       true,
		Project:      bson.D{{Key: "name", Value: 1}},
	}
)
