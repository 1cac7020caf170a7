package annotation

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/model-collapse/annoconv/dserrors"
)

func TestNewBbox(t *testing.T) {
	b, err := NewBbox(2, 2, 3, 1, WithLabel(1), WithGroup(1), WithID(1),
		WithAttribute("is_crowd", Bool(false)))
	require.NoError(t, err)

	assert.Equal(t, TypeBbox, b.Type())
	assert.Equal(t, 1, b.Label)
	assert.Equal(t, 0, b.ZOrder)
	assert.Equal(t, []float64{2, 2, 3, 1}, b.Coords())

	_, err = NewBbox(0, 0, -1, 2)
	assert.True(t, dserrors.IsInvalidGeometry(err))

	_, err = NewBbox(math.NaN(), 0, 1, 1)
	assert.True(t, dserrors.IsInvalidGeometry(err))
}

func TestDefaultLabelIsUnset(t *testing.T) {
	b := Must(NewBbox(0, 0, 1, 1))
	assert.False(t, b.HasLabel())
	assert.Equal(t, NoLabel, b.Label)
}

func TestNewPolygon(t *testing.T) {
	p, err := NewPolygon([]float64{0, 0, 1, 0, 1, 2, 0, 2}, WithLabel(0))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, p.Area(), 1e-9)

	r, ok := p.Bounds()
	require.True(t, ok)
	assert.Equal(t, Rect{X: 0, Y: 0, W: 1, H: 2}, r)

	_, err = NewPolygon([]float64{0, 0, 1, 1})
	assert.True(t, dserrors.IsInvalidGeometry(err), "two points are not a polygon")

	_, err = NewPolygon([]float64{0, 0, 1, 1, 2})
	assert.True(t, dserrors.IsInvalidGeometry(err), "odd coordinate count")

	_, err = NewPolyline([]float64{0, 0, 5, 5})
	assert.NoError(t, err)

	_, err = NewPoints([]float64{3, 4})
	assert.NoError(t, err)
}

func TestPolygonCopiesPoints(t *testing.T) {
	pts := []float64{0, 0, 1, 0, 1, 1}
	p := Must(NewPolygon(pts))
	pts[0] = 99
	assert.Equal(t, 0.0, p.Points[0])
}

func TestClone(t *testing.T) {
	p := Must(NewPolygon([]float64{0, 0, 1, 0, 1, 1}, WithAttribute("x", Int(1))))
	c := p.Clone().(*Polygon)
	c.Points[0] = 5
	c.Attributes["x"] = String("changed")

	assert.Equal(t, 0.0, p.Points[0])
	assert.True(t, p.Attributes["x"].Equal(Int(1)))
}

func TestValue_TypeSensitive(t *testing.T) {
	assert.True(t, Bool(true).Equal(Bool(true)))
	assert.False(t, Bool(true).Equal(Number(1)))
	assert.False(t, Number(1).Equal(String("1")))
	assert.True(t, Int(5).Equal(Number(5.0)))

	n, ok := Int(40).AsInt()
	assert.True(t, ok)
	assert.Equal(t, 40, n)

	_, ok = Number(1.5).AsInt()
	assert.False(t, ok)
}

func TestValue_NaN(t *testing.T) {
	nan := Number(math.NaN())
	assert.True(t, nan.Equal(nan))
	assert.False(t, nan.Equal(Number(0)))
	assert.Nil(t, CompareAttributes(Attributes{"score": nan}, Attributes{"score": nan}))

	for _, x := range []any{math.NaN(), math.Inf(1), float32(math.Inf(-1))} {
		_, err := ValueOf(x)
		assert.Error(t, err, "%v", x)
	}
	_, err := AttributesFrom(map[string]any{"score": math.Inf(1)})
	assert.Error(t, err)
}

func TestValue_JSON(t *testing.T) {
	attrs := Attributes{
		"x":        Int(1),
		"y":        String("hello"),
		"is_crowd": Bool(false),
	}
	data, err := json.Marshal(attrs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1,"y":"hello","is_crowd":false}`, string(data))

	var back Attributes
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Nil(t, CompareAttributes(attrs, back))
	assert.Equal(t, KindBool, back["is_crowd"].Kind())
	assert.Equal(t, KindNumber, back["x"].Kind())
	assert.Equal(t, KindString, back["y"].Kind())

	var v Value
	assert.Error(t, json.Unmarshal([]byte(`null`), &v))
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &v))
}

func TestParseText(t *testing.T) {
	assert.Equal(t, KindBool, ParseText("true").Kind())
	assert.Equal(t, KindNumber, ParseText("3.5").Kind())
	assert.Equal(t, KindString, ParseText("frontal").Kind())
	assert.Equal(t, KindString, ParseText("NaN").Kind())
}

func TestCompareAttributes(t *testing.T) {
	m := CompareAttributes(
		Attributes{"x": Int(1), "y": String("hello")},
		Attributes{"x": String("1"), "y": String("hello")},
	)
	require.NotNil(t, m)
	assert.Equal(t, "attributes.x", m.Field)
	assert.Equal(t, "1 (number)", m.Want)
	assert.Equal(t, `"1" (string)`, m.Got)

	m = CompareAttributes(Attributes{}, Attributes{"extra": Bool(true)})
	require.NotNil(t, m)
	assert.Equal(t, "<absent>", m.Want)
}

func TestCompare(t *testing.T) {
	a := Must(NewBbox(0, 0, 1, 2, WithID(1), WithGroup(1), WithLabel(0)))
	b := Must(NewBbox(0, 0.0004, 1, 2, WithID(1), WithGroup(1), WithLabel(0)))
	assert.Nil(t, Compare(a, b, DefaultTolerance))

	c := Must(NewBbox(0, 0.5, 1, 2, WithID(1), WithGroup(1), WithLabel(0)))
	m := Compare(a, c, DefaultTolerance)
	require.NotNil(t, m)
	assert.Equal(t, "bbox[1]", m.Field)

	d := Must(NewBbox(0, 0, 1, 2, WithID(2), WithGroup(1), WithLabel(0)))
	assert.Equal(t, "id", Compare(a, d, DefaultTolerance).Field)

	p := Must(NewPolygon([]float64{0, 0, 1, 0, 1, 2}, WithID(1), WithGroup(1), WithLabel(0)))
	assert.Equal(t, "type", Compare(a, p, DefaultTolerance).Field)
}

func TestGroups(t *testing.T) {
	anns := []Annotation{
		Must(NewPolygon([]float64{0, 0, 1, 0, 1, 2, 0, 2}, WithID(1), WithGroup(1))),
		Must(NewBbox(0, 0, 1, 2, WithID(1), WithGroup(1))),
		Must(NewBbox(5, 5, 1, 1, WithID(7))),
		Must(NewMask(mustRows(t, [][]uint8{{1, 0}}), WithID(2), WithGroup(2), WithAttribute("is_crowd", Bool(true)))),
		Must(NewBbox(0, 0, 1, 1, WithID(2), WithGroup(2), WithAttribute("is_crowd", Bool(true)))),
	}

	idx := Groups(anns)
	var got [][]int
	for _, inst := range idx.Instances() {
		got = append(got, inst.Members)
	}
	if diff := cmp.Diff([][]int{{0, 1}, {2}, {3, 4}}, got); diff != "" {
		t.Errorf("instances mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []int{3, 4}, idx.Lookup(2, 2))
	assert.Nil(t, idx.Lookup(0, 7))

	_, conflict := idx.AttributeConflict(anns, "is_crowd")
	assert.False(t, conflict)

	anns[4].Meta().Attributes["is_crowd"] = Bool(false)
	inst, conflict := Groups(anns).AttributeConflict(anns, "is_crowd")
	require.True(t, conflict)
	assert.Equal(t, GroupKey{Group: 2, ID: 2}, inst.Key)
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{TypeBbox, TypePolygon, TypePolyline, TypePoints, TypeMask, TypeTag} {
		back, ok := ParseType(typ.String())
		require.True(t, ok)
		assert.Equal(t, typ, back)
	}
	_, ok := ParseType("cuboid")
	assert.False(t, ok)
}

func mustRows(t *testing.T, rows [][]uint8) *Bitmap {
	t.Helper()
	bm, err := BitmapFromRows(rows)
	require.NoError(t, err)
	return bm
}
