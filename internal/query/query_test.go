package query

import (
	"errors"
	"net/url"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/wandertours/apiserver/types"
)

func parseQuery(t *testing.T, raw string) Spec {
	t.Helper()
	values, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatalf("parse query string: %v", err)
	}
	spec, err := Parse(values, types.TourSchema)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return spec
}

func TestParseDefaults(t *testing.T) {
	spec := parseQuery(t, "")

	if spec.Page != 1 || spec.Limit != 100 {
		t.Fatalf("expected page 1 limit 100, got %d/%d", spec.Page, spec.Limit)
	}
	if spec.Skip() != 0 {
		t.Fatalf("expected skip 0, got %d", spec.Skip())
	}
	if len(spec.Filter) != 0 {
		t.Fatalf("expected empty filter, got %v", spec.Filter)
	}
	if len(spec.Sort) != 1 || spec.Sort[0].Key != "createdAt" || spec.Sort[0].Value != -1 {
		t.Fatalf("expected default sort -createdAt, got %v", spec.Sort)
	}
}

func TestParsePagination(t *testing.T) {
	spec := parseQuery(t, "page=3&limit=10")
	if spec.Skip() != 20 {
		t.Fatalf("expected skip 20, got %d", spec.Skip())
	}

	for _, raw := range []string{"page=0&limit=-5", "page=abc&limit=xyz", "page=&limit="} {
		spec := parseQuery(t, raw)
		if spec.Page != DefaultPage || spec.Limit != DefaultLimit {
			t.Fatalf("%s: expected fallbacks, got %d/%d", raw, spec.Page, spec.Limit)
		}
	}
}

func TestParseEqualityFilter(t *testing.T) {
	spec := parseQuery(t, "difficulty=easy&duration=5")

	if spec.Filter["difficulty"] != "easy" {
		t.Fatalf("expected difficulty easy, got %v", spec.Filter["difficulty"])
	}
	// duration is a numeric field, so its value is coerced.
	if spec.Filter["duration"] != 5.0 {
		t.Fatalf("expected duration 5.0, got %v (%T)", spec.Filter["duration"], spec.Filter["duration"])
	}
}

func TestParseComparisonOperators(t *testing.T) {
	spec := parseQuery(t, "price[gte]=500&price[lt]=2000&duration[lte]=9")

	price, ok := spec.Filter["price"].(bson.M)
	if !ok {
		t.Fatalf("expected operator map for price, got %T", spec.Filter["price"])
	}
	if price["$gte"] != 500.0 || price["$lt"] != 2000.0 {
		t.Fatalf("unexpected price predicate: %v", price)
	}

	duration, ok := spec.Filter["duration"].(bson.M)
	if !ok || duration["$lte"] != 9.0 {
		t.Fatalf("unexpected duration predicate: %v", spec.Filter["duration"])
	}
}

func TestParseEqualityWithOperator(t *testing.T) {
	// Mixing equality and a bracket operator on one field must keep both
	// predicates; equality folds into $eq so neither is lost to map
	// iteration order.
	spec := parseQuery(t, "duration=5&duration[gte]=3")

	duration, ok := spec.Filter["duration"].(bson.M)
	if !ok {
		t.Fatalf("expected operator map, got %T", spec.Filter["duration"])
	}
	if duration["$eq"] != 5.0 || duration["$gte"] != 3.0 {
		t.Fatalf("unexpected duration predicate: %v", duration)
	}
}

func TestParseSortAndFields(t *testing.T) {
	spec := parseQuery(t, "sort=-price,ratingsAverage&fields=name,price")

	want := bson.D{{Key: "price", Value: -1}, {Key: "ratingsAverage", Value: 1}}
	if len(spec.Sort) != len(want) {
		t.Fatalf("unexpected sort: %v", spec.Sort)
	}
	for i, key := range want {
		if spec.Sort[i] != key {
			t.Fatalf("sort[%d] = %v, want %v", i, spec.Sort[i], key)
		}
	}

	projection := spec.Projection()
	if len(projection) != 2 || projection[0].Key != "name" || projection[1].Key != "price" {
		t.Fatalf("unexpected projection: %v", projection)
	}
}

func TestHiddenProjection(t *testing.T) {
	spec, err := Parse(url.Values{}, types.UserSchema)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	projection := spec.Projection()
	if len(projection) == 0 {
		t.Fatalf("expected exclusion projection for hidden fields")
	}
	for _, field := range projection {
		if field.Value != 0 {
			t.Fatalf("expected exclusion for %s, got %v", field.Key, field.Value)
		}
	}

	// An explicit field selection overrides the hidden exclusion.
	spec, err = Parse(url.Values{"fields": {"name"}}, types.UserSchema)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	projection = spec.Projection()
	if len(projection) != 1 || projection[0].Key != "name" || projection[0].Value != 1 {
		t.Fatalf("unexpected projection: %v", projection)
	}
}

func TestParseRejectsBadFilters(t *testing.T) {
	cases := []string{
		"price[unknown]=5",
		"price[gte=5",
		"secretTour=true",
		"nosuchfield=1",
	}
	for _, raw := range cases {
		values, err := url.ParseQuery(raw)
		if err != nil {
			t.Fatalf("parse query string: %v", err)
		}
		_, err = Parse(values, types.TourSchema)
		var invalid *InvalidQueryError
		if !errors.As(err, &invalid) {
			t.Fatalf("%s: expected InvalidQueryError, got %v", raw, err)
		}
	}
}

func TestWithFilterScopeWins(t *testing.T) {
	spec := parseQuery(t, "difficulty=easy")
	scoped := spec.WithFilter(bson.M{"difficulty": "difficult", "secretTour": bson.M{"$ne": true}})

	if scoped.Filter["difficulty"] != "difficult" {
		t.Fatalf("scope did not win: %v", scoped.Filter)
	}
	// The original spec is untouched.
	if spec.Filter["difficulty"] != "easy" {
		t.Fatalf("original spec mutated: %v", spec.Filter)
	}
	if _, ok := spec.Filter["secretTour"]; ok {
		t.Fatalf("original spec mutated: %v", spec.Filter)
	}
}
