// internal/criteria/compile.go
// Package criteria implements the typed metadata-filtering query language.
// It validates and compiles a list of (field, operator, value) criteria
// into a single conjunctive predicate over content items. Compilation is a
// pure function: no I/O, no shared state.
package criteria

import (
	gwerrors "github.com/pixelfeed/pixelfeed-gateway-go/internal/errors"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/model"
)

const (
	// MaxCriteria is the maximum number of criteria in one request.
	MaxCriteria = 64

	// Bounds on the value list of in/not_in operators.
	minListValues = 1
	maxListValues = 128
)

// Predicate reports whether a content item satisfies the compiled criteria.
type Predicate func(item *model.ContentItem) bool

// Operators of the query language.
const (
	OpEq        = "eq"
	OpNeq       = "neq"
	OpLt        = "lt"
	OpGt        = "gt"
	OpLte       = "lte"
	OpGte       = "gte"
	OpIn        = "in"
	OpNotIn     = "not_in"
	OpIsNull    = "is_null"
	OpIsNotNull = "is_not_null"
)

// fieldType classifies a whitelisted field for operator compatibility.
type fieldType int

const (
	typeNumeric fieldType = iota // int64-valued artwork metadata
	typeBool                     // nullable transparency/alpha flags
	typeEnum                     // closed string sets
)

// fieldSpec declares the type, nullability, and (for enums) the literal
// set of one whitelisted field.
type fieldSpec struct {
	typ      fieldType
	nullable bool
	enum     []string
}

var formatLiterals = []string{
	string(model.FormatPNG),
	string(model.FormatGIF),
	string(model.FormatWebP),
	string(model.FormatBMP),
}

var kindLiterals = []string{
	string(model.KindArtwork),
	string(model.KindPlaylist),
}

// fields is the whitelist of filterable metadata fields. A criterion
// naming anything else fails compilation.
var fields = map[string]fieldSpec{
	"width":                 {typ: typeNumeric},
	"height":                {typ: typeNumeric},
	"file_bytes":            {typ: typeNumeric},
	"frame_count":           {typ: typeNumeric},
	"min_frame_duration_ms": {typ: typeNumeric},
	"max_frame_duration_ms": {typ: typeNumeric},
	"unique_colors":         {typ: typeNumeric},
	"transparency_meta":     {typ: typeBool, nullable: true},
	"alpha_meta":            {typ: typeBool, nullable: true},
	"transparency_actual":   {typ: typeBool, nullable: true},
	"alpha_actual":          {typ: typeBool, nullable: true},
	"file_format":           {typ: typeEnum, enum: formatLiterals},
	"kind":                  {typ: typeEnum, enum: kindLiterals},
}

// Compile validates a criteria list and produces the conjunctive predicate.
// An empty list compiles to the always-true predicate. Any violation of the
// field whitelist, operator compatibility, or value typing returns an
// invalid_criteria error and no predicate.
func Compile(list []model.Criterion) (Predicate, *gwerrors.Error) {
	if len(list) > MaxCriteria {
		return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "too many criteria: %d exceeds maximum of %d", len(list), MaxCriteria)
	}

	preds := make([]Predicate, 0, len(list))
	for i, c := range list {
		p, err := compileOne(i, c)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	if len(preds) == 0 {
		return func(*model.ContentItem) bool { return true }, nil
	}

	return func(item *model.ContentItem) bool {
		for _, p := range preds {
			if !p(item) {
				return false
			}
		}
		return true
	}, nil
}

// compileOne validates a single criterion and builds its evaluator.
func compileOne(index int, c model.Criterion) (Predicate, *gwerrors.Error) {
	spec, ok := fields[c.Field]
	if !ok {
		return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "criterion %d: unknown field %q", index, c.Field)
	}

	switch c.Op {
	case OpEq, OpNeq:
		return compileEquality(index, c, spec)
	case OpLt, OpGt, OpLte, OpGte:
		if spec.typ != typeNumeric {
			return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "criterion %d: operator %q requires a numeric field, %q is not", index, c.Op, c.Field)
		}
		return compileOrdering(index, c)
	case OpIn, OpNotIn:
		if spec.typ == typeBool {
			return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "criterion %d: operator %q does not apply to field %q", index, c.Op, c.Field)
		}
		return compileMembership(index, c, spec)
	case OpIsNull, OpIsNotNull:
		if !spec.nullable {
			return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "criterion %d: operator %q requires a nullable field, %q is not", index, c.Op, c.Field)
		}
		if c.Value != nil {
			return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "criterion %d: operator %q takes no value", index, c.Op)
		}
		return compileNullCheck(c), nil
	default:
		return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "criterion %d: unknown operator %q", index, c.Op)
	}
}

func compileEquality(index int, c model.Criterion, spec fieldSpec) (Predicate, *gwerrors.Error) {
	negate := c.Op == OpNeq

	switch spec.typ {
	case typeNumeric:
		want, ok := asInt64(c.Value)
		if !ok {
			return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "criterion %d: field %q requires an integer value", index, c.Field)
		}
		get := numericGetter(c.Field)
		return func(item *model.ContentItem) bool {
			v, present := get(item)
			if !present {
				return false
			}
			return (v == want) != negate
		}, nil

	case typeBool:
		want, ok := c.Value.(bool)
		if !ok {
			return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "criterion %d: field %q requires a boolean value", index, c.Field)
		}
		get := boolGetter(c.Field)
		return func(item *model.ContentItem) bool {
			v, present := get(item)
			if !present || v == nil {
				// Unknown values satisfy neither eq nor neq.
				return false
			}
			return (*v == want) != negate
		}, nil

	case typeEnum:
		want, ok := c.Value.(string)
		if !ok || !inLiterals(want, spec.enum) {
			return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "criterion %d: field %q requires one of %v", index, c.Field, spec.enum)
		}
		get := enumGetter(c.Field)
		return func(item *model.ContentItem) bool {
			v, present := get(item)
			if !present {
				return false
			}
			return (v == want) != negate
		}, nil
	}

	return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "criterion %d: unsupported field type", index)
}

func compileOrdering(index int, c model.Criterion) (Predicate, *gwerrors.Error) {
	want, ok := asInt64(c.Value)
	if !ok {
		return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "criterion %d: field %q requires an integer value", index, c.Field)
	}
	get := numericGetter(c.Field)
	op := c.Op
	return func(item *model.ContentItem) bool {
		v, present := get(item)
		if !present {
			return false
		}
		switch op {
		case OpLt:
			return v < want
		case OpGt:
			return v > want
		case OpLte:
			return v <= want
		default:
			return v >= want
		}
	}, nil
}

func compileMembership(index int, c model.Criterion, spec fieldSpec) (Predicate, *gwerrors.Error) {
	values, ok := asList(c.Value)
	if !ok {
		return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "criterion %d: operator %q requires an array value", index, c.Op)
	}
	if len(values) < minListValues || len(values) > maxListValues {
		return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "criterion %d: operator %q requires %d-%d values, got %d", index, c.Op, minListValues, maxListValues, len(values))
	}
	negate := c.Op == OpNotIn

	if spec.typ == typeNumeric {
		set := make(map[int64]struct{}, len(values))
		for _, raw := range values {
			v, ok := asInt64(raw)
			if !ok {
				return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "criterion %d: field %q requires integer list values", index, c.Field)
			}
			set[v] = struct{}{}
		}
		get := numericGetter(c.Field)
		return func(item *model.ContentItem) bool {
			v, present := get(item)
			if !present {
				return false
			}
			_, member := set[v]
			return member != negate
		}, nil
	}

	set := make(map[string]struct{}, len(values))
	for _, raw := range values {
		s, ok := raw.(string)
		if !ok || !inLiterals(s, spec.enum) {
			return nil, gwerrors.Newf(gwerrors.InvalidCriteria, "criterion %d: field %q requires list values from %v", index, c.Field, spec.enum)
		}
		set[s] = struct{}{}
	}
	get := enumGetter(c.Field)
	return func(item *model.ContentItem) bool {
		v, present := get(item)
		if !present {
			return false
		}
		_, member := set[v]
		return member != negate
	}, nil
}

func compileNullCheck(c model.Criterion) Predicate {
	wantNull := c.Op == OpIsNull
	get := boolGetter(c.Field)
	return func(item *model.ContentItem) bool {
		v, present := get(item)
		isNull := !present || v == nil
		return isNull == wantNull
	}
}

// numericGetter returns an accessor for one of the numeric artwork fields.
// The second return is false for items that do not carry the field, such
// as playlists; such items never match a numeric criterion.
func numericGetter(field string) func(*model.ContentItem) (int64, bool) {
	return func(item *model.ContentItem) (int64, bool) {
		a := item.Artwork
		if a == nil {
			return 0, false
		}
		switch field {
		case "width":
			return a.Width, true
		case "height":
			return a.Height, true
		case "file_bytes":
			return a.FileBytes, true
		case "frame_count":
			return a.FrameCount, true
		case "min_frame_duration_ms":
			return a.MinFrameDurationMS, true
		case "max_frame_duration_ms":
			return a.MaxFrameDurationMS, true
		case "unique_colors":
			return a.UniqueColors, true
		}
		return 0, false
	}
}

// boolGetter returns an accessor for one of the nullable boolean fields.
func boolGetter(field string) func(*model.ContentItem) (*bool, bool) {
	return func(item *model.ContentItem) (*bool, bool) {
		a := item.Artwork
		if a == nil {
			return nil, false
		}
		switch field {
		case "transparency_meta":
			return a.TransparencyMeta, true
		case "alpha_meta":
			return a.AlphaMeta, true
		case "transparency_actual":
			return a.TransparencyActual, true
		case "alpha_actual":
			return a.AlphaActual, true
		}
		return nil, false
	}
}

// enumGetter returns an accessor for one of the enum fields.
func enumGetter(field string) func(*model.ContentItem) (string, bool) {
	return func(item *model.ContentItem) (string, bool) {
		switch field {
		case "kind":
			return string(item.Kind), true
		case "file_format":
			if item.Artwork == nil {
				return "", false
			}
			return string(item.Artwork.FileFormat), true
		}
		return "", false
	}
}

// asInt64 coerces a decoded JSON value to an int64, rejecting fractional
// numbers. Go-native integer types are accepted for in-process callers.
func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		i := int64(n)
		if float64(i) != n {
			return 0, false
		}
		return i, true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// asList coerces a decoded JSON array or a Go slice of values.
func asList(v interface{}) ([]interface{}, bool) {
	switch l := v.(type) {
	case []interface{}:
		return l, true
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]interface{}, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

func inLiterals(s string, literals []string) bool {
	for _, lit := range literals {
		if s == lit {
			return true
		}
	}
	return false
}
