// Package store wraps MongoDB collections behind a small set of repository
// primitives: filtered find, find-by-id, insert, update-by-id and
// delete-by-id, plus aggregation for the analytics queries. Driver errors
// are mapped to the package sentinels.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/wandertours/apiserver/internal/query"
)

// Join directs the eager resolution of a foreign-key field into its
// referenced record(s), rendered as a $lookup stage.
type Join struct {
	// From is the collection holding the referenced records.
	From string

	// LocalField / ForeignField are the join keys.
	LocalField   string
	ForeignField string

	// As is the output field. It may shadow LocalField to replace stored
	// references with resolved records.
	As string

	// Single unwraps the joined array to its first element.
	Single bool

	// Project optionally narrows the fields of the joined records.
	Project bson.D

	// Pipeline optionally replaces Project with a full sub-pipeline run
	// over the joined records (e.g. a nested join).
	Pipeline mongo.Pipeline
}

func (j Join) stages() mongo.Pipeline {
	lookup := bson.M{
		"from":         j.From,
		"localField":   j.LocalField,
		"foreignField": j.ForeignField,
		"as":           j.As,
	}
	switch {
	case len(j.Pipeline) > 0:
		lookup["pipeline"] = j.Pipeline
	case len(j.Project) > 0:
		projection := bson.M{}
		for _, field := range j.Project {
			projection[field.Key] = field.Value
		}
		lookup["pipeline"] = []bson.M{{"$project": projection}}
	}
	stages := mongo.Pipeline{bson.D{{Key: "$lookup", Value: lookup}}}
	if j.Single {
		stages = append(stages, bson.D{{Key: "$set", Value: bson.M{
			j.As: bson.M{"$first": "$" + j.As},
		}}})
	}
	return stages
}

// Collection is a typed repository over one MongoDB collection.
type Collection[T any] struct {
	coll *mongo.Collection
}

func NewCollection[T any](db *mongo.Database, name string) *Collection[T] {
	return &Collection[T]{coll: db.Collection(name)}
}

// Find executes a query specification and returns the matching records.
// An empty result is not an error.
func (c *Collection[T]) Find(ctx context.Context, spec query.Spec, joins ...Join) ([]T, error) {
	if len(joins) > 0 {
		return c.findPipeline(ctx, spec, joins)
	}

	opts := options.Find()
	if len(spec.Sort) > 0 {
		opts.SetSort(spec.Sort)
	}
	if projection := spec.Projection(); projection != nil {
		opts.SetProjection(projection)
	}
	if spec.Limit > 0 {
		opts.SetSkip(spec.Skip()).SetLimit(spec.Limit)
	}

	cursor, err := c.coll.Find(ctx, orEmpty(spec.Filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	results := []T{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Collection[T]) findPipeline(ctx context.Context, spec query.Spec, joins []Join) ([]T, error) {
	pipeline := mongo.Pipeline{}
	if len(spec.Filter) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: spec.Filter}})
	}
	if len(spec.Sort) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: spec.Sort}})
	}
	if spec.Limit > 0 {
		pipeline = append(pipeline,
			bson.D{{Key: "$skip", Value: spec.Skip()}},
			bson.D{{Key: "$limit", Value: spec.Limit}},
		)
	}
	for _, join := range joins {
		pipeline = append(pipeline, join.stages()...)
	}
	if projection := spec.Projection(); projection != nil {
		pipeline = append(pipeline, bson.D{{Key: "$project", Value: projection}})
	}

	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	results := []T{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// FindByID returns the record with the given identifier, constrained by an
// optional scope filter, with joins resolved.
func (c *Collection[T]) FindByID(ctx context.Context, id string, scope bson.M, joins ...Join) (T, error) {
	var zero T
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return zero, ErrInvalidID
	}

	filter := bson.M{"_id": oid}
	for key, value := range scope {
		filter[key] = value
	}

	if len(joins) == 0 {
		var result T
		if err := c.coll.FindOne(ctx, filter).Decode(&result); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return zero, ErrNotFound
			}
			return zero, err
		}
		return result, nil
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: filter}},
		bson.D{{Key: "$limit", Value: 1}},
	}
	for _, join := range joins {
		pipeline = append(pipeline, join.stages()...)
	}

	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return zero, err
	}
	defer cursor.Close(ctx)

	results := []T{}
	if err := cursor.All(ctx, &results); err != nil {
		return zero, err
	}
	if len(results) == 0 {
		return zero, ErrNotFound
	}
	return results[0], nil
}

// FindOne returns the first record matching a raw filter. An optional
// projection overrides the default field selection.
func (c *Collection[T]) FindOne(ctx context.Context, filter bson.M, projection bson.D) (T, error) {
	var zero T
	opts := options.FindOne()
	if projection != nil {
		opts.SetProjection(projection)
	}
	var result T
	if err := c.coll.FindOne(ctx, orEmpty(filter), opts).Decode(&result); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return zero, ErrNotFound
		}
		return zero, err
	}
	return result, nil
}

// Exists reports whether any record matches the filter.
func (c *Collection[T]) Exists(ctx context.Context, filter bson.M) (bool, error) {
	count, err := c.coll.CountDocuments(ctx, orEmpty(filter), options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Insert persists a validated field map with a fresh identifier and returns
// the stored record with joins resolved.
func (c *Collection[T]) Insert(ctx context.Context, fields map[string]any, joins ...Join) (T, error) {
	var zero T
	oid := bson.NewObjectID()
	fields["_id"] = oid

	if _, err := c.coll.InsertOne(ctx, fields); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return zero, ErrDuplicate
		}
		return zero, err
	}
	return c.FindByID(ctx, oid.Hex(), nil, joins...)
}

// InsertMany bulk-inserts raw documents; used by the seed command.
func (c *Collection[T]) InsertMany(ctx context.Context, docs []any) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := c.coll.InsertMany(ctx, docs)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

// UpdateByID applies a partial field map to the record with the given
// identifier and returns the updated record with joins resolved.
func (c *Collection[T]) UpdateByID(ctx context.Context, id string, fields map[string]any, joins ...Join) (T, error) {
	var zero T
	if len(fields) == 0 {
		// MongoDB rejects an empty $set; treat it as a read.
		return c.FindByID(ctx, id, nil, joins...)
	}
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return zero, ErrInvalidID
	}

	result, err := c.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": fields})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return zero, ErrDuplicate
		}
		return zero, err
	}
	if result.MatchedCount == 0 {
		return zero, ErrNotFound
	}
	return c.FindByID(ctx, id, nil, joins...)
}

// UpdateRaw applies a raw update document to all records matching a filter;
// used by service-level maintenance writes (rating sync, password state).
func (c *Collection[T]) UpdateRaw(ctx context.Context, filter, update bson.M) error {
	result, err := c.coll.UpdateMany(ctx, orEmpty(filter), update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByID removes the record with the given identifier.
func (c *Collection[T]) DeleteByID(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidID
	}
	result, err := c.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMany removes all records matching a filter; used by the seed command.
func (c *Collection[T]) DeleteMany(ctx context.Context, filter bson.M) error {
	_, err := c.coll.DeleteMany(ctx, orEmpty(filter))
	return err
}

// Aggregate runs a raw pipeline and returns loosely-typed documents; used by
// the statistics and geospatial queries.
func (c *Collection[T]) Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.M, error) {
	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	results := []bson.M{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func orEmpty(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}
