package transform

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/model-collapse/annoconv/annotation"
	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/dserrors"
	"github.com/model-collapse/annoconv/media"
)

func shapes(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.FromIterable([]*dataset.Item{
		{
			ID: "a", Media: media.FromSize(6, 5),
			Annotations: []annotation.Annotation{
				annotation.Must(annotation.NewPolygon([]float64{0, 0, 2, 0, 2, 2, 0, 2},
					annotation.WithID(1), annotation.WithLabel(0), annotation.WithAttribute("is_crowd", annotation.Bool(false)))),
				annotation.Must(annotation.NewBbox(1, 1, 3, 2, annotation.WithID(2), annotation.WithLabel(1))),
				annotation.Must(annotation.NewPolyline([]float64{0, 4, 5, 1}, annotation.WithLabel(2))),
				annotation.Must(annotation.NewTag(annotation.WithLabel(2))),
			},
		},
	}, dataset.NewCategories("cat", "dog", "bird"))
	require.NoError(t, err)
	return ds
}

func only(t *testing.T, ds *dataset.Dataset) *dataset.Item {
	t.Helper()
	require.Equal(t, 1, ds.Len())
	return ds.Items()[0]
}

func types(anns []annotation.Annotation) []string {
	out := make([]string, len(anns))
	for i, a := range anns {
		out[i] = a.Type().String()
	}
	return out
}

func TestPolygonsToMasks(t *testing.T) {
	src := shapes(t)
	got, err := Apply(context.Background(), src, []Transform{PolygonsToMasks()})
	require.NoError(t, err)

	it := only(t, got)
	assert.Equal(t, []string{"mask", "bbox", "polyline", "tag"}, types(it.Annotations))
	m := it.Annotations[0].(*annotation.Mask)
	assert.Equal(t, 4, m.Area())
	assert.Equal(t, 1, m.ID)
	assert.True(t, m.Attributes["is_crowd"].Equal(annotation.Bool(false)))

	// the source dataset is untouched
	assert.Equal(t, annotation.TypePolygon, only(t, src).Annotations[0].Type())
}

func TestBoxesToMasks(t *testing.T) {
	got, err := Apply(context.Background(), shapes(t), []Transform{BoxesToMasks()})
	require.NoError(t, err)

	it := only(t, got)
	assert.Equal(t, []string{"polygon", "mask", "polyline", "tag"}, types(it.Annotations))
	m := it.Annotations[1].(*annotation.Mask)
	assert.Equal(t, 6, m.Area())
	assert.True(t, m.Bitmap.At(1, 1))
	assert.False(t, m.Bitmap.At(4, 1))
}

func TestShapesToBoxes(t *testing.T) {
	empty, err := annotation.NewBitmap(6, 5)
	require.NoError(t, err)
	ds, err := dataset.FromIterable([]*dataset.Item{{
		ID: "a", Media: media.FromSize(6, 5),
		Annotations: append(only(t, shapes(t)).Annotations, annotation.Must(annotation.NewMask(empty))),
	}}, dataset.NewCategories("cat", "dog", "bird"))
	require.NoError(t, err)

	got, err := Apply(context.Background(), ds, []Transform{ShapesToBoxes()})
	require.NoError(t, err)

	it := only(t, got)
	assert.Equal(t, []string{"bbox", "bbox", "bbox", "tag"}, types(it.Annotations))
	assert.Equal(t, []float64{0, 0, 2, 2}, it.Annotations[0].(*annotation.Bbox).Coords())
	assert.Equal(t, []float64{0, 1, 5, 3}, it.Annotations[2].(*annotation.Bbox).Coords())
	assert.Equal(t, 1, it.Annotations[0].Meta().ID)
}

func TestRemapLabels(t *testing.T) {
	got, err := Apply(context.Background(), shapes(t), []Transform{
		RemapLabels(map[string]string{"cat": "animal", "dog": "animal", "bird": "", "fish": "x"}),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"animal"}, got.Categories().Names())
	it := only(t, got)
	assert.Equal(t, []string{"polygon", "bbox"}, types(it.Annotations))
	for _, a := range it.Annotations {
		assert.Equal(t, 0, a.Meta().Label)
	}
}

func TestRemapLabels_KeepsUnmappedAndUnlabeled(t *testing.T) {
	ds, err := dataset.FromIterable([]*dataset.Item{{ID: "a", Annotations: []annotation.Annotation{
		annotation.Must(annotation.NewTag(annotation.WithLabel(0))),
		annotation.Must(annotation.NewTag(annotation.WithLabel(1))),
		annotation.Must(annotation.NewTag()),
	}}}, dataset.NewCategories("a", "b"))
	require.NoError(t, err)

	got, err := Apply(context.Background(), ds, []Transform{RemapLabels(map[string]string{"a": "z"})})
	require.NoError(t, err)

	assert.Equal(t, []string{"z", "b"}, got.Categories().Names())
	var labels []int
	for _, a := range only(t, got).Annotations {
		labels = append(labels, a.Meta().Label)
	}
	assert.Equal(t, []int{0, 1, annotation.NoLabel}, labels)
}

func TestApply_Chain(t *testing.T) {
	got, err := Apply(context.Background(), shapes(t), []Transform{
		PolygonsToMasks(),
		ShapesToBoxes(),
		RemapLabels(map[string]string{"bird": ""}),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bbox", "bbox"}, types(only(t, got).Annotations))
	assert.Equal(t, []string{"cat", "dog"}, got.Categories().Names())
}

func TestApply_KeepsOrder(t *testing.T) {
	var items []*dataset.Item
	var want []string
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("img%03d", i)
		want = append(want, id)
		items = append(items, &dataset.Item{ID: id, Subset: []string{"train", "val"}[i%2], Media: media.FromSize(8, 8),
			Annotations: []annotation.Annotation{
				annotation.Must(annotation.NewPolygon([]float64{0, 0, 4, 0, 4, 4}, annotation.WithLabel(0))),
			}})
	}
	ds, err := dataset.FromIterable(items, dataset.NewCategories("x"))
	require.NoError(t, err)

	got, err := Apply(context.Background(), ds, []Transform{PolygonsToMasks()}, WithWorkers(8))
	require.NoError(t, err)

	var ids []string
	for _, it := range got.Items() {
		ids = append(ids, it.ID)
	}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("item order (-want +got):\n%s", diff)
	}
}

func TestApply_Errors(t *testing.T) {
	ds, err := dataset.FromIterable([]*dataset.Item{
		{ID: "sized", Media: media.FromSize(4, 4)},
		{ID: "bare", Annotations: []annotation.Annotation{
			annotation.Must(annotation.NewTag()),
			annotation.Must(annotation.NewPolygon([]float64{0, 0, 1, 0, 1, 1}, annotation.WithID(7))),
		}},
	}, nil)
	require.NoError(t, err)

	_, err = Apply(context.Background(), ds, []Transform{PolygonsToMasks()}, WithWorkers(1))
	require.Error(t, err)
	assert.True(t, dserrors.IsMediaDimensionUnknown(err))
	e, ok := dserrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "bare", e.Details[dserrors.DetailItem])
	assert.Equal(t, "1", e.Details[dserrors.DetailAnnotationIndex])
	assert.Equal(t, "7", e.Details[dserrors.DetailAnnotationID])
}

func TestApply_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Apply(ctx, shapes(t), []Transform{ShapesToBoxes()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestByName(t *testing.T) {
	for _, name := range []string{"polygons_to_masks", "boxes_to_masks", "shapes_to_boxes"} {
		tr, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, tr.Name())
	}
	_, err := ByName("blur")
	assert.Error(t, err)
}
