package types

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ValidationError reports schema violations with per-field messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid input data"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, e.Fields[name])
	}
	return "invalid input data: " + strings.Join(parts, ". ")
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// FieldRule validates a single field value. The full document is passed so
// rules may reference sibling fields (e.g. priceDiscount < price).
type FieldRule func(value any, doc map[string]any) error

// Schema declares the persistence rules for one resource type: which fields
// are required, how they are validated, which may appear in query-string
// filters, and how loosely-typed input values are coerced before validation.
type Schema struct {
	// Collection is the backing collection name.
	Collection string

	// Required maps mandatory fields to their violation message.
	Required map[string]string

	// Rules maps field names to their validation rule.
	Rules map[string]FieldRule

	// Defaults supplies values for absent fields at create time.
	Defaults map[string]func() any

	// Filterable lists the fields a client may filter on.
	Filterable map[string]bool

	// Numeric lists fields whose values are coerced to float64. String
	// values (form submissions) are parsed; failures are validation errors.
	Numeric map[string]bool

	// Refs lists foreign-key fields whose hex string values are coerced to
	// ObjectIDs. Applies to single values and arrays.
	Refs map[string]bool

	// Times lists fields whose RFC 3339 string values are coerced to
	// time.Time. Applies to single values and arrays.
	Times map[string]bool

	// Hidden lists fields excluded from responses unless explicitly
	// selected (the analog of a schema-level select: false).
	Hidden []string
}

// ApplyDefaults fills in absent fields from the schema defaults.
func (s Schema) ApplyDefaults(doc map[string]any) {
	for field, value := range s.Defaults {
		if _, ok := doc[field]; !ok {
			doc[field] = value()
		}
	}
}

// Coerce normalizes loosely-typed input values in place: numeric strings to
// float64, ref hex strings to ObjectIDs, timestamp strings to time.Time.
func (s Schema) Coerce(doc map[string]any) error {
	for field, value := range doc {
		switch {
		case s.Numeric[field]:
			coerced, err := coerceNumber(value)
			if err != nil {
				return NewValidationError(field, fmt.Sprintf("%s must be a number", field))
			}
			doc[field] = coerced
		case s.Refs[field]:
			coerced, err := coerceEach(value, coerceObjectID)
			if err != nil {
				return NewValidationError(field, fmt.Sprintf("%s must be a valid ID", field))
			}
			doc[field] = coerced
		case s.Times[field]:
			coerced, err := coerceEach(value, coerceTime)
			if err != nil {
				return NewValidationError(field, fmt.Sprintf("%s must be a timestamp", field))
			}
			doc[field] = coerced
		}
	}
	return nil
}

// Validate checks a full document: every required field must be present and
// every present field must satisfy its rule.
func (s Schema) Validate(doc map[string]any) error {
	violations := map[string]string{}
	for field, message := range s.Required {
		if value, ok := doc[field]; !ok || isEmpty(value) {
			violations[field] = message
		}
	}
	s.checkRules(doc, violations)
	if len(violations) > 0 {
		return &ValidationError{Fields: violations}
	}
	return nil
}

// ValidatePartial checks only the supplied fields against their rules.
func (s Schema) ValidatePartial(doc map[string]any) error {
	violations := map[string]string{}
	for field, message := range s.Required {
		if value, ok := doc[field]; ok && isEmpty(value) {
			violations[field] = message
		}
	}
	s.checkRules(doc, violations)
	if len(violations) > 0 {
		return &ValidationError{Fields: violations}
	}
	return nil
}

func (s Schema) checkRules(doc map[string]any, violations map[string]string) {
	for field, rule := range s.Rules {
		value, ok := doc[field]
		if !ok || value == nil {
			continue
		}
		if err := rule(value, doc); err != nil {
			violations[field] = err.Error()
		}
	}
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	if str, ok := value.(string); ok {
		return strings.TrimSpace(str) == ""
	}
	return false
}

func coerceNumber(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("not a number")
	}
}

func coerceEach(value any, coerce func(any) (any, error)) (any, error) {
	if items, ok := value.([]any); ok {
		out := make([]any, len(items))
		for i, item := range items {
			coerced, err := coerce(item)
			if err != nil {
				return nil, err
			}
			out[i] = coerced
		}
		return out, nil
	}
	return coerce(value)
}

func coerceObjectID(value any) (any, error) {
	switch v := value.(type) {
	case bson.ObjectID:
		return v, nil
	case string:
		return bson.ObjectIDFromHex(strings.TrimSpace(v))
	default:
		return nil, fmt.Errorf("not an object id")
	}
}

func coerceTime(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		return time.Parse(time.RFC3339, strings.TrimSpace(v))
	default:
		return nil, fmt.Errorf("not a timestamp")
	}
}

// Rule helpers.

func ruleMinLen(n int, message string) FieldRule {
	return func(value any, _ map[string]any) error {
		if str, ok := value.(string); ok && len(strings.TrimSpace(str)) < n {
			return fmt.Errorf("%s", message)
		}
		return nil
	}
}

func ruleMaxLen(n int, message string) FieldRule {
	return func(value any, _ map[string]any) error {
		if str, ok := value.(string); ok && len(strings.TrimSpace(str)) > n {
			return fmt.Errorf("%s", message)
		}
		return nil
	}
}

func ruleEnum(message string, allowed ...string) FieldRule {
	set := make(map[string]bool, len(allowed))
	for _, v := range allowed {
		set[v] = true
	}
	return func(value any, _ map[string]any) error {
		str, ok := value.(string)
		if !ok || !set[str] {
			return fmt.Errorf("%s", message)
		}
		return nil
	}
}

func ruleRange(min, max float64, message string) FieldRule {
	return func(value any, _ map[string]any) error {
		num, err := coerceNumber(value)
		if err != nil || num < min || num > max {
			return fmt.Errorf("%s", message)
		}
		return nil
	}
}

func ruleMatches(pattern, message string) FieldRule {
	re := regexp.MustCompile(pattern)
	return func(value any, _ map[string]any) error {
		str, ok := value.(string)
		if !ok || !re.MatchString(str) {
			return fmt.Errorf("%s", message)
		}
		return nil
	}
}

func combineRules(rules ...FieldRule) FieldRule {
	return func(value any, doc map[string]any) error {
		for _, rule := range rules {
			if err := rule(value, doc); err != nil {
				return err
			}
		}
		return nil
	}
}
