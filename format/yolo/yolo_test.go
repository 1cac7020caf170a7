package yolo

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/model-collapse/annoconv/annotation"
	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/dserrors"
	"github.com/model-collapse/annoconv/format"
	"github.com/model-collapse/annoconv/media"
)

func boxes(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.FromIterable([]*dataset.Item{
		{
			ID: "a", Subset: "train", Media: media.FromSize(10, 5),
			Annotations: []annotation.Annotation{
				annotation.Must(annotation.NewBbox(2, 2, 3, 1, annotation.WithLabel(1))),
				annotation.Must(annotation.NewBbox(0, 0, 10, 5, annotation.WithLabel(0), annotation.WithID(1), annotation.WithGroup(1))),
			},
		},
		{ID: "nested/b", Subset: "train", Media: media.FromSize(7, 3)},
		{
			ID: "c", Subset: "valid", Media: media.FromSize(640, 480),
			Annotations: []annotation.Annotation{
				annotation.Must(annotation.NewBbox(100.5, 33.25, 17, 201.125, annotation.WithLabel(2))),
			},
		},
	}, dataset.NewCategories("cat", "dog", "bird"))
	require.NoError(t, err)
	return ds
}

func requireEqual(t *testing.T, want, got *dataset.Dataset) {
	t.Helper()
	if d := dataset.Compare(want, got); d != nil {
		t.Fatalf("datasets differ: %s", d)
	}
}

func TestRoundTrip(t *testing.T) {
	src := boxes(t)
	dir := t.TempDir()
	require.NoError(t, New().Export(src, dir, format.ExportOptions{}))
	require.NoError(t, New().Detect(dir))

	got, err := New().Import(dir, format.ImportOptions{})
	require.NoError(t, err)
	requireEqual(t, src, got)
	assert.Equal(t, []string{"train", "valid"}, got.Subsets())
}

func TestExport_Files(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, New().Export(boxes(t), dir, format.ExportOptions{}))

	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return string(data)
	}

	assert.Equal(t, "classes = 3\ntrain = data/train.txt\nvalid = data/valid.txt\nnames = data/obj.names\nbackup = backup/\n", read("obj.data"))
	assert.Equal(t, "cat\ndog\nbird\n", read("obj.names"))
	assert.Equal(t, "data/obj_train_data/a.jpg\ndata/obj_train_data/nested/b.jpg\n", read("train.txt"))
	assert.Equal(t, "1 0.35 0.5 0.3 0.2\n0 0.5 0.5 1 1\n", read("obj_train_data/a.txt"))
	assert.Empty(t, read("obj_train_data/nested/b.txt"))
	assert.Contains(t, read("images.meta"), "train/a 5 10\n")
}

func TestImport_SizeFromImageHeader(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	write("obj.data", "classes = 1\ntrain = data/train.txt\nnames = data/obj.names\n")
	write("obj.names", "x\n")
	write("train.txt", "data/obj_train_data/img.png\n")
	write("obj_train_data/img.txt", "0 0.5 0.5 0.5 0.5\n")

	f, err := os.Create(filepath.Join(dir, "obj_train_data", "img.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 8, 4))))
	require.NoError(t, f.Close())

	ds, err := New().Import(dir, format.ImportOptions{})
	require.NoError(t, err)
	it, ok := ds.Get("img", "train")
	require.True(t, ok)
	require.Len(t, it.Annotations, 1)
	assert.Equal(t, []float64{2, 1, 4, 2}, it.Annotations[0].(*annotation.Bbox).Coords())
}

func TestImport_Errors(t *testing.T) {
	tests := []struct {
		name  string
		ann   string
		meta  string
		check func(error) bool
	}{
		{name: "unknown size", ann: "0 0.5 0.5 0.1 0.1\n", check: dserrors.IsMediaDimensionUnknown},
		{name: "label out of range", ann: "3 0.5 0.5 0.1 0.1\n", meta: "train/a 10 10\n", check: dserrors.IsCorruptData},
		{name: "short line", ann: "0 0.5 0.5\n", meta: "train/a 10 10\n", check: dserrors.IsCorruptData},
		{name: "negative size", ann: "0 0.5 0.5 -0.1 0.1\n", meta: "train/a 10 10\n", check: dserrors.IsInvalidGeometry},
		{name: "bad meta", ann: "0 0.5 0.5 0.1 0.1\n", meta: "train/a ten 10\n", check: dserrors.IsCorruptData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			files := map[string]string{
				"obj.data":             "classes = 1\ntrain = data/train.txt\n",
				"obj.names":            "x\n",
				"train.txt":            "data/obj_train_data/a.jpg\n",
				"obj_train_data/a.txt": tt.ann,
			}
			if tt.meta != "" {
				files["images.meta"] = tt.meta
			}
			for name, body := range files {
				p := filepath.Join(dir, name)
				require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
				require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
			}

			_, err := New().Import(dir, format.ImportOptions{})
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestDetect(t *testing.T) {
	assert.True(t, dserrors.IsUnsupportedFormat(New().Detect(t.TempDir())))
}

func TestExport_Strict(t *testing.T) {
	ds, err := dataset.FromIterable([]*dataset.Item{{ID: "a", Media: media.FromSize(4, 4),
		Annotations: []annotation.Annotation{
			annotation.Must(annotation.NewBbox(0, 0, 1, 1, annotation.WithLabel(0),
				annotation.WithAttribute("is_crowd", annotation.Bool(false)))),
		}}}, dataset.NewCategories("x"))
	require.NoError(t, err)

	err = New().Export(ds, t.TempDir(), format.ExportOptions{})
	assert.True(t, dserrors.IsUnrepresentableAnnotation(err))

	dir := t.TempDir()
	require.NoError(t, New().Export(ds, dir, format.ExportOptions{Lossy: true}))
	back, err := New().Import(dir, format.ImportOptions{})
	require.NoError(t, err)
	it, _ := back.Get("a", dataset.DefaultSubset)
	require.Len(t, it.Annotations, 1)
	assert.Empty(t, it.Annotations[0].Meta().Attributes)
}

func TestExport_UnlabeledBox(t *testing.T) {
	ds, err := dataset.FromIterable([]*dataset.Item{{ID: "a", Media: media.FromSize(4, 4),
		Annotations: []annotation.Annotation{annotation.Must(annotation.NewBbox(0, 0, 1, 1))}}}, nil)
	require.NoError(t, err)

	err = New().Export(ds, t.TempDir(), format.ExportOptions{})
	assert.True(t, dserrors.IsUnrepresentableAnnotation(err))

	dir := t.TempDir()
	require.NoError(t, New().Export(ds, dir, format.ExportOptions{Lossy: true}))
	data, err := os.ReadFile(filepath.Join(dir, "obj_default_data", "a.txt"))
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(data)))
}

func TestExport_NeedsSize(t *testing.T) {
	ds, err := dataset.FromIterable([]*dataset.Item{{ID: "a",
		Annotations: []annotation.Annotation{annotation.Must(annotation.NewBbox(0, 0, 1, 1, annotation.WithLabel(0)))}}},
		dataset.NewCategories("x"))
	require.NoError(t, err)
	assert.True(t, dserrors.IsMediaDimensionUnknown(New().Export(ds, t.TempDir(), format.ExportOptions{})))
}
