package datumaro

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/model-collapse/annoconv/annotation"
	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/dserrors"
	"github.com/model-collapse/annoconv/format"
	"github.com/model-collapse/annoconv/format/coco"
	"github.com/model-collapse/annoconv/media"
)

func everyVariant(t *testing.T) *dataset.Dataset {
	t.Helper()
	bm, err := annotation.BitmapFromRows([][]uint8{
		{0, 1, 1, 0},
		{0, 1, 0, 0},
		{0, 0, 0, 1},
	})
	require.NoError(t, err)
	empty, err := annotation.NewBitmap(4, 3)
	require.NoError(t, err)

	cats := dataset.NewCategories()
	_, err = cats.AddWithParent("car", "vehicle")
	require.NoError(t, err)
	_, err = cats.Add("person")
	require.NoError(t, err)

	ds, err := dataset.FromIterable([]*dataset.Item{
		{
			ID: "frames/0001", Subset: "train", Media: media.FromSize(4, 3),
			Attributes: annotation.Attributes{"weather": annotation.String("rain"), "frame": annotation.Int(1)},
			Annotations: []annotation.Annotation{
				annotation.Must(annotation.NewBbox(0.5, 1.25, 2, 1, annotation.WithID(3), annotation.WithLabel(0),
					annotation.WithGroup(7), annotation.WithZOrder(-1),
					annotation.WithAttributes(annotation.Attributes{
						"occluded": annotation.Bool(true),
						"score":    annotation.Number(0.875),
						"code":     annotation.String("5"),
					}))),
				annotation.Must(annotation.NewPolygon([]float64{0, 0, 3, 0, 3, 2}, annotation.WithID(3), annotation.WithGroup(7), annotation.WithLabel(0))),
				annotation.Must(annotation.NewPolyline([]float64{0, 0, 1, 1}, annotation.WithLabel(1))),
				annotation.Must(annotation.NewPoints([]float64{2, 2}, annotation.WithZOrder(4))),
				annotation.Must(annotation.NewMask(bm, annotation.WithID(9), annotation.WithLabel(1))),
				annotation.Must(annotation.NewMask(empty)),
				annotation.Must(annotation.NewTag(annotation.WithLabel(1))),
			},
		},
		{ID: "no-media", Subset: "train"},
		{ID: "x", Subset: "test", Media: media.FromSize(640, 480)},
	}, cats)
	require.NoError(t, err)
	return ds
}

func TestRoundTrip(t *testing.T) {
	src := everyVariant(t)
	dir := t.TempDir()
	require.NoError(t, New().Export(src, dir, format.ExportOptions{}))
	require.NoError(t, New().Detect(dir))

	got, err := New().Import(dir, format.ImportOptions{})
	require.NoError(t, err)
	if d := dataset.Compare(src, got, dataset.WithTolerance(0)); d != nil {
		t.Fatalf("datasets differ: %s", d)
	}
	assert.Equal(t, "vehicle", got.Categories().At(0).Parent)
}

func TestRoundTrip_EmptyDataset(t *testing.T) {
	src, err := dataset.FromIterable(nil, dataset.NewCategories("a", "b"))
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, New().Export(src, dir, format.ExportOptions{}))
	got, err := New().Import(dir, format.ImportOptions{})
	require.NoError(t, err)
	assert.Zero(t, got.Len())
	assert.Equal(t, []string{"a", "b"}, got.Categories().Names())
}

func TestRoundTrip_FromRoboflow(t *testing.T) {
	src, err := coco.NewRoboflow().Import(filepath.Join("..", "coco", "testdata", "coco_roboflow"), format.ImportOptions{})
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, New().Export(src, dir, format.ExportOptions{}))
	got, err := New().Import(dir, format.ImportOptions{})
	require.NoError(t, err)
	if d := dataset.Compare(src, got); d != nil {
		t.Fatalf("datasets differ: %s", d)
	}
}

func TestExport_SaveMedia(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.NRGBA{R: 200, A: 255})
	src, err := dataset.FromIterable([]*dataset.Item{{ID: "pic", Media: media.FromImage(img)}}, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, New().Export(src, dir, format.ExportOptions{SaveMedia: true}))
	assert.FileExists(t, filepath.Join(dir, imagesDir, dataset.DefaultSubset, "pic.png"))

	got, err := New().Import(dir, format.ImportOptions{})
	require.NoError(t, err)
	it, ok := got.Get("pic", "")
	require.True(t, ok)
	data, err := it.Media.Data()
	require.NoError(t, err)
	assert.True(t, media.PixelsEqual(img, data))
}

func TestImport_SubsetFilter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, New().Export(everyVariant(t), dir, format.ExportOptions{}))

	got, err := New().Import(dir, format.ImportOptions{Subsets: []string{"test"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"test"}, got.Subsets())
	assert.Equal(t, 2, got.Categories().Len())
}

func TestDetect(t *testing.T) {
	assert.True(t, dserrors.IsUnsupportedFormat(New().Detect(t.TempDir())))

	dir := t.TempDir()
	require.NoError(t, coco.New().Export(everyBox(t), dir, format.ExportOptions{}))
	assert.True(t, dserrors.IsUnsupportedFormat(New().Detect(dir)), "COCO layout must not be detected")
}

func everyBox(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.FromIterable([]*dataset.Item{{ID: "a", Media: media.FromSize(2, 2),
		Annotations: []annotation.Annotation{annotation.Must(annotation.NewBbox(0, 0, 1, 1, annotation.WithLabel(0)))}}},
		dataset.NewCategories("x"))
	require.NoError(t, err)
	return ds
}

func TestImport_Errors(t *testing.T) {
	const labels = `"categories": {"label": {"labels": [{"name": "a", "parent": ""}]}}`
	tests := []struct {
		name  string
		files map[string]string
		check func(error) bool
	}{
		{
			name:  "label out of range",
			files: map[string]string{"train.json": `{` + labels + `, "items": [{"id": "i", "annotations": [{"id": 1, "type": "tag", "label_id": 4}]}]}`},
			check: dserrors.IsCorruptData,
		},
		{
			name:  "unknown type",
			files: map[string]string{"train.json": `{` + labels + `, "items": [{"id": "i", "annotations": [{"id": 1, "type": "cuboid"}]}]}`},
			check: dserrors.IsCorruptData,
		},
		{
			name:  "short bbox",
			files: map[string]string{"train.json": `{` + labels + `, "items": [{"id": "i", "annotations": [{"id": 1, "type": "bbox", "bbox": [1, 2]}]}]}`},
			check: dserrors.IsCorruptData,
		},
		{
			name:  "odd points",
			files: map[string]string{"train.json": `{` + labels + `, "items": [{"id": "i", "annotations": [{"id": 1, "type": "points", "points": [1, 2, 3]}]}]}`},
			check: dserrors.IsInvalidGeometry,
		},
		{
			name:  "null attribute",
			files: map[string]string{"train.json": `{` + labels + `, "items": [{"id": "i", "attr": {"k": null}, "annotations": []}]}`},
			check: dserrors.IsCorruptData,
		},
		{
			name:  "mask counts do not cover size",
			files: map[string]string{"train.json": `{` + labels + `, "items": [{"id": "i", "annotations": [{"id": 1, "type": "mask", "mask": {"counts": "0", "size": [2, 2]}}]}]}`},
			check: dserrors.IsInvalidGeometry,
		},
		{
			name: "labels differ between subsets",
			files: map[string]string{
				"train.json": `{` + labels + `, "items": []}`,
				"val.json":   `{"categories": {"label": {"labels": [{"name": "b"}]}}, "items": []}`,
			},
			check: dserrors.IsCorruptData,
		},
		{
			name:  "duplicate label",
			files: map[string]string{"train.json": `{"categories": {"label": {"labels": [{"name": "a"}, {"name": "a"}]}}, "items": []}`},
			check: dserrors.IsDuplicateLabel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.MkdirAll(filepath.Join(dir, annotationsDir), 0o755))
			for name, body := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, annotationsDir, name), []byte(body), 0o644))
			}
			_, err := New().Import(dir, format.ImportOptions{})
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}
