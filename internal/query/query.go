// Package query translates HTTP query strings into store-native query
// specifications: filter predicates, sort keys, field projections and
// pagination. Parsing is pure; a Spec is built once per request and passed
// by value, never mutated.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/wandertours/apiserver/types"
)

const (
	// DefaultPage and DefaultLimit apply when page/limit are absent or
	// not coercible to a positive integer.
	DefaultPage  = 1
	DefaultLimit = 100
)

// reserved query keys never become filter predicates.
var reservedKeys = map[string]bool{
	"page": true, "sort": true, "limit": true, "fields": true,
}

// comparisonOps maps bracket operators to their store-native tokens.
var comparisonOps = map[string]string{
	"gte": "$gte",
	"gt":  "$gt",
	"lte": "$lte",
	"lt":  "$lt",
}

// InvalidQueryError reports a malformed filter key or operator.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return "invalid query: " + e.Reason
}

// Spec is the normalized filter/sort/projection/pagination intent derived
// from one request.
type Spec struct {
	// Filter is the predicate tree in the store's native form.
	Filter bson.M

	// Sort is the ordered list of (field, direction) keys.
	Sort bson.D

	// Fields is the explicit include projection; empty means "all fields
	// except Hidden".
	Fields []string

	// Hidden lists schema-level hidden fields, excluded whenever Fields
	// is empty.
	Hidden []string

	Page  int64
	Limit int64
}

// Skip is the number of records to pass over for the requested page.
func (s Spec) Skip() int64 {
	return (s.Page - 1) * s.Limit
}

// Projection renders the field selection for the store, or nil when every
// field is wanted.
func (s Spec) Projection() bson.D {
	if len(s.Fields) > 0 {
		projection := make(bson.D, 0, len(s.Fields))
		for _, field := range s.Fields {
			projection = append(projection, bson.E{Key: field, Value: 1})
		}
		return projection
	}
	if len(s.Hidden) > 0 {
		projection := make(bson.D, 0, len(s.Hidden))
		for _, field := range s.Hidden {
			projection = append(projection, bson.E{Key: field, Value: 0})
		}
		return projection
	}
	return nil
}

// WithFilter returns a copy of the Spec with extra predicates merged in.
// Extra predicates win over client-supplied ones, so a nested-route scope
// cannot be widened from the query string.
func (s Spec) WithFilter(extra bson.M) Spec {
	if len(extra) == 0 {
		return s
	}
	merged := make(bson.M, len(s.Filter)+len(extra))
	for key, value := range s.Filter {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	out := s
	out.Filter = merged
	return out
}

// Parse builds a Spec from URL query values against a resource schema. The
// schema decides which fields are filterable and which values are numeric.
func Parse(values url.Values, schema types.Schema) (Spec, error) {
	spec := Spec{
		Filter: bson.M{},
		Sort:   bson.D{{Key: "createdAt", Value: -1}},
		Hidden: schema.Hidden,
		Page:   DefaultPage,
		Limit:  DefaultLimit,
	}

	for key := range values {
		if reservedKeys[key] {
			continue
		}
		field, op, err := splitFilterKey(key)
		if err != nil {
			return Spec{}, err
		}
		if !schema.Filterable[field] {
			return Spec{}, &InvalidQueryError{Reason: fmt.Sprintf("cannot filter on %q", field)}
		}

		value := filterValue(values.Get(key), field, schema)
		if op == "" {
			// Equality joins an existing operator map as $eq so it is
			// not lost to key iteration order.
			if operators, ok := spec.Filter[field].(bson.M); ok {
				operators["$eq"] = value
			} else {
				spec.Filter[field] = value
			}
			continue
		}
		operators, ok := spec.Filter[field].(bson.M)
		if !ok {
			operators = bson.M{}
			if existing, present := spec.Filter[field]; present {
				operators["$eq"] = existing
			}
			spec.Filter[field] = operators
		}
		operators[op] = value
	}

	if raw := strings.TrimSpace(values.Get("sort")); raw != "" {
		spec.Sort = parseSort(raw)
	}
	if raw := strings.TrimSpace(values.Get("fields")); raw != "" {
		spec.Fields = splitList(raw)
	}
	spec.Page = positiveInt(values.Get("page"), DefaultPage)
	spec.Limit = positiveInt(values.Get("limit"), DefaultLimit)

	return spec, nil
}

// splitFilterKey separates "price[gte]" into ("price", "$gte"). A bare key
// has no operator and means equality.
func splitFilterKey(key string) (field, op string, err error) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return key, "", nil
	}
	if !strings.HasSuffix(key, "]") {
		return "", "", &InvalidQueryError{Reason: fmt.Sprintf("malformed filter key %q", key)}
	}
	field = key[:open]
	token, ok := comparisonOps[key[open+1:len(key)-1]]
	if !ok {
		return "", "", &InvalidQueryError{Reason: fmt.Sprintf("unknown operator in %q", key)}
	}
	return field, token, nil
}

func filterValue(raw, field string, schema types.Schema) any {
	if schema.Numeric[field] {
		if num, err := strconv.ParseFloat(raw, 64); err == nil {
			return num
		}
	}
	if schema.Refs[field] {
		if id, err := bson.ObjectIDFromHex(raw); err == nil {
			return id
		}
	}
	return raw
}

func parseSort(raw string) bson.D {
	sort := bson.D{}
	for _, field := range splitList(raw) {
		direction := 1
		if strings.HasPrefix(field, "-") {
			direction = -1
			field = field[1:]
		}
		if field == "" {
			continue
		}
		sort = append(sort, bson.E{Key: field, Value: direction})
	}
	return sort
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// positiveInt falls back to the default for absent, non-numeric or
// non-positive values.
func positiveInt(raw string, fallback int64) int64 {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
