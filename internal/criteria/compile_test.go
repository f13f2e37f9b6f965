// Package criteria provides tests for criteria compilation and predicate
// evaluation.
package criteria

import (
	"testing"

	gwerrors "github.com/pixelfeed/pixelfeed-gateway-go/internal/errors"
	"github.com/pixelfeed/pixelfeed-gateway-go/internal/model"
)

// boolPtr returns a pointer to the given bool, for the nullable fields.
func boolPtr(b bool) *bool { return &b }

// artwork builds an artwork content item with the given metadata.
func artwork(id int64, meta model.ArtworkMeta) model.ContentItem {
	return model.ContentItem{
		ID:      id,
		Kind:    model.KindArtwork,
		Artwork: &meta,
	}
}

// playlist builds a playlist content item.
func playlist(id int64) model.ContentItem {
	return model.ContentItem{
		ID:       id,
		Kind:     model.KindPlaylist,
		Playlist: &model.PlaylistMeta{ArtworkCount: 3},
	}
}

// TestCompileEmptyList tests that an empty criteria list compiles to the
// always-true predicate.
func TestCompileEmptyList(t *testing.T) {
	p, err := Compile(nil)
	if err != nil {
		t.Fatalf("Compile(nil) error = %v", err)
	}

	item := artwork(1, model.ArtworkMeta{Width: 10})
	if !p(&item) {
		t.Errorf("empty criteria predicate = false, want true")
	}
	pl := playlist(2)
	if !p(&pl) {
		t.Errorf("empty criteria predicate on playlist = false, want true")
	}
}

// TestCompileUnknownField tests that a field outside the whitelist fails
// compilation with invalid_criteria.
func TestCompileUnknownField(t *testing.T) {
	_, err := Compile([]model.Criterion{{Field: "owner_id", Op: OpEq, Value: "x"}})
	if err == nil {
		t.Fatal("Compile() error = nil, want invalid_criteria")
	}
	if err.Code != gwerrors.InvalidCriteria {
		t.Errorf("Compile() error code = %v, want %v", err.Code, gwerrors.InvalidCriteria)
	}
}

// TestCompileUnknownOperator tests that an unrecognized operator fails
// compilation.
func TestCompileUnknownOperator(t *testing.T) {
	_, err := Compile([]model.Criterion{{Field: "width", Op: "between", Value: float64(5)}})
	if err == nil {
		t.Fatal("Compile() error = nil, want invalid_criteria")
	}
	if err.Code != gwerrors.InvalidCriteria {
		t.Errorf("Compile() error code = %v, want %v", err.Code, gwerrors.InvalidCriteria)
	}
}

// TestCompileTooManyCriteria tests that 65 criteria are rejected while 64
// are accepted.
func TestCompileTooManyCriteria(t *testing.T) {
	list := make([]model.Criterion, MaxCriteria)
	for i := range list {
		list[i] = model.Criterion{Field: "width", Op: OpGte, Value: float64(1)}
	}
	if _, err := Compile(list); err != nil {
		t.Fatalf("Compile() with %d criteria error = %v, want nil", MaxCriteria, err)
	}

	list = append(list, model.Criterion{Field: "width", Op: OpGte, Value: float64(1)})
	_, err := Compile(list)
	if err == nil {
		t.Fatal("Compile() with 65 criteria error = nil, want invalid_criteria")
	}
	if err.Code != gwerrors.InvalidCriteria {
		t.Errorf("Compile() error code = %v, want %v", err.Code, gwerrors.InvalidCriteria)
	}
}

// TestCompileOperatorTypeMismatch tests operator and field type
// incompatibilities.
func TestCompileOperatorTypeMismatch(t *testing.T) {
	cases := []struct {
		name string
		c    model.Criterion
	}{
		{"ordering on bool field", model.Criterion{Field: "alpha_meta", Op: OpLt, Value: float64(1)}},
		{"ordering on enum field", model.Criterion{Field: "file_format", Op: OpGte, Value: "png"}},
		{"membership on bool field", model.Criterion{Field: "transparency_meta", Op: OpIn, Value: []interface{}{true}}},
		{"null check on numeric field", model.Criterion{Field: "width", Op: OpIsNull}},
		{"null check on enum field", model.Criterion{Field: "kind", Op: OpIsNotNull}},
		{"null check with value", model.Criterion{Field: "alpha_meta", Op: OpIsNull, Value: true}},
		{"string value on numeric field", model.Criterion{Field: "height", Op: OpEq, Value: "tall"}},
		{"fractional value on numeric field", model.Criterion{Field: "height", Op: OpEq, Value: 1.5}},
		{"integer value on bool field", model.Criterion{Field: "alpha_actual", Op: OpEq, Value: float64(1)}},
		{"unknown enum literal", model.Criterion{Field: "file_format", Op: OpEq, Value: "jpeg"}},
		{"scalar value for in", model.Criterion{Field: "width", Op: OpIn, Value: float64(5)}},
	}

	for _, tc := range cases {
		_, err := Compile([]model.Criterion{tc.c})
		if err == nil {
			t.Errorf("%s: Compile() error = nil, want invalid_criteria", tc.name)
			continue
		}
		if err.Code != gwerrors.InvalidCriteria {
			t.Errorf("%s: error code = %v, want %v", tc.name, err.Code, gwerrors.InvalidCriteria)
		}
	}
}

// TestCompileListBounds tests the 1-128 bound on in/not_in value lists.
func TestCompileListBounds(t *testing.T) {
	// Empty list rejected
	_, err := Compile([]model.Criterion{{Field: "width", Op: OpIn, Value: []interface{}{}}})
	if err == nil || err.Code != gwerrors.InvalidCriteria {
		t.Errorf("Compile() with empty list error = %v, want invalid_criteria", err)
	}

	// 128 values accepted
	max := make([]interface{}, 128)
	for i := range max {
		max[i] = float64(i)
	}
	if _, err := Compile([]model.Criterion{{Field: "width", Op: OpIn, Value: max}}); err != nil {
		t.Errorf("Compile() with 128 list values error = %v, want nil", err)
	}

	// 129 values rejected
	over := append(max, float64(128))
	_, err = Compile([]model.Criterion{{Field: "width", Op: OpNotIn, Value: over}})
	if err == nil || err.Code != gwerrors.InvalidCriteria {
		t.Errorf("Compile() with 129 list values error = %v, want invalid_criteria", err)
	}
}

// TestNumericOperators tests evaluation of the ordering operators against
// artwork metadata.
func TestNumericOperators(t *testing.T) {
	item := artwork(1, model.ArtworkMeta{Width: 64, FrameCount: 1})

	cases := []struct {
		op    string
		value float64
		want  bool
	}{
		{OpEq, 64, true},
		{OpEq, 65, false},
		{OpNeq, 65, true},
		{OpNeq, 64, false},
		{OpLt, 65, true},
		{OpLt, 64, false},
		{OpGt, 63, true},
		{OpGt, 64, false},
		{OpLte, 64, true},
		{OpLte, 63, false},
		{OpGte, 64, true},
		{OpGte, 65, false},
	}

	for _, tc := range cases {
		p, err := Compile([]model.Criterion{{Field: "width", Op: tc.op, Value: tc.value}})
		if err != nil {
			t.Fatalf("Compile(width %s %v) error = %v", tc.op, tc.value, err)
		}
		if got := p(&item); got != tc.want {
			t.Errorf("width=64 %s %v = %v, want %v", tc.op, tc.value, got, tc.want)
		}
	}
}

// TestNullableBoolSemantics tests the three-valued semantics of the
// nullable flags: null values satisfy neither eq nor neq, only is_null.
func TestNullableBoolSemantics(t *testing.T) {
	known := artwork(1, model.ArtworkMeta{AlphaMeta: boolPtr(true)})
	unknown := artwork(2, model.ArtworkMeta{})

	eqTrue, err := Compile([]model.Criterion{{Field: "alpha_meta", Op: OpEq, Value: true}})
	if err != nil {
		t.Fatalf("Compile(alpha_meta eq true) error = %v", err)
	}
	if !eqTrue(&known) {
		t.Errorf("alpha_meta=true eq true = false, want true")
	}
	if eqTrue(&unknown) {
		t.Errorf("alpha_meta=null eq true = true, want false")
	}

	neqTrue, err := Compile([]model.Criterion{{Field: "alpha_meta", Op: OpNeq, Value: true}})
	if err != nil {
		t.Fatalf("Compile(alpha_meta neq true) error = %v", err)
	}
	if neqTrue(&unknown) {
		t.Errorf("alpha_meta=null neq true = true, want false")
	}

	isNull, err := Compile([]model.Criterion{{Field: "alpha_meta", Op: OpIsNull}})
	if err != nil {
		t.Fatalf("Compile(alpha_meta is_null) error = %v", err)
	}
	if !isNull(&unknown) {
		t.Errorf("alpha_meta=null is_null = false, want true")
	}
	if isNull(&known) {
		t.Errorf("alpha_meta=true is_null = true, want false")
	}

	isNotNull, err := Compile([]model.Criterion{{Field: "alpha_meta", Op: OpIsNotNull}})
	if err != nil {
		t.Fatalf("Compile(alpha_meta is_not_null) error = %v", err)
	}
	if !isNotNull(&known) {
		t.Errorf("alpha_meta=true is_not_null = false, want true")
	}
	if isNotNull(&unknown) {
		t.Errorf("alpha_meta=null is_not_null = true, want false")
	}
}

// TestPlaylistNeverMatchesArtworkFields tests that playlists do not match
// criteria on artwork-only fields, in either polarity.
func TestPlaylistNeverMatchesArtworkFields(t *testing.T) {
	pl := playlist(7)

	for _, c := range []model.Criterion{
		{Field: "width", Op: OpGte, Value: float64(0)},
		{Field: "width", Op: OpNeq, Value: float64(1)},
		{Field: "file_format", Op: OpEq, Value: "png"},
		{Field: "file_format", Op: OpNotIn, Value: []interface{}{"gif"}},
	} {
		p, err := Compile([]model.Criterion{c})
		if err != nil {
			t.Fatalf("Compile(%s %s) error = %v", c.Field, c.Op, err)
		}
		if p(&pl) {
			t.Errorf("playlist matched %s %s, want no match", c.Field, c.Op)
		}
	}

	// The kind field applies to every item.
	p, err := Compile([]model.Criterion{{Field: "kind", Op: OpEq, Value: "playlist"}})
	if err != nil {
		t.Fatalf("Compile(kind eq playlist) error = %v", err)
	}
	if !p(&pl) {
		t.Errorf("playlist did not match kind eq playlist")
	}
}

// TestConjunctiveScenario tests a full conjunctive filter: static icons
// at least 64 pixels wide in a lossless format.
func TestConjunctiveScenario(t *testing.T) {
	p, err := Compile([]model.Criterion{
		{Field: "width", Op: OpGte, Value: float64(64)},
		{Field: "file_format", Op: OpIn, Value: []interface{}{"png", "bmp"}},
		{Field: "frame_count", Op: OpEq, Value: float64(1)},
	})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	match := artwork(1, model.ArtworkMeta{Width: 128, FrameCount: 1, FileFormat: model.FormatPNG})
	tooSmall := artwork(2, model.ArtworkMeta{Width: 32, FrameCount: 1, FileFormat: model.FormatPNG})
	animated := artwork(3, model.ArtworkMeta{Width: 128, FrameCount: 8, FileFormat: model.FormatPNG})
	wrongFormat := artwork(4, model.ArtworkMeta{Width: 128, FrameCount: 1, FileFormat: model.FormatGIF})
	pl := playlist(5)

	if !p(&match) {
		t.Errorf("conforming artwork did not match")
	}
	if p(&tooSmall) {
		t.Errorf("32px artwork matched a width>=64 filter")
	}
	if p(&animated) {
		t.Errorf("8-frame artwork matched a frame_count=1 filter")
	}
	if p(&wrongFormat) {
		t.Errorf("gif artwork matched a png/bmp filter")
	}
	if p(&pl) {
		t.Errorf("playlist matched an artwork metadata filter")
	}
}

// TestMembershipOperators tests in and not_in over numeric and enum fields.
func TestMembershipOperators(t *testing.T) {
	item := artwork(1, model.ArtworkMeta{UniqueColors: 16, FileFormat: model.FormatWebP})

	in, err := Compile([]model.Criterion{{Field: "unique_colors", Op: OpIn, Value: []interface{}{float64(8), float64(16), float64(32)}}})
	if err != nil {
		t.Fatalf("Compile(unique_colors in) error = %v", err)
	}
	if !in(&item) {
		t.Errorf("unique_colors=16 in [8,16,32] = false, want true")
	}

	notIn, err := Compile([]model.Criterion{{Field: "file_format", Op: OpNotIn, Value: []interface{}{"png", "gif"}}})
	if err != nil {
		t.Fatalf("Compile(file_format not_in) error = %v", err)
	}
	if !notIn(&item) {
		t.Errorf("file_format=webp not_in [png,gif] = false, want true")
	}

	notIn2, err := Compile([]model.Criterion{{Field: "file_format", Op: OpNotIn, Value: []interface{}{"webp"}}})
	if err != nil {
		t.Fatalf("Compile(file_format not_in webp) error = %v", err)
	}
	if notIn2(&item) {
		t.Errorf("file_format=webp not_in [webp] = true, want false")
	}
}
