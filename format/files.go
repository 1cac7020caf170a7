package format

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/dserrors"
)

// DefaultImageExt is used for items whose media has neither a source file
// nor pixels.
const DefaultImageExt = ".jpg"

// SplitExt splits a file name into stem and extension, e.g.
// "dir/a.b.jpg" -> ("dir/a.b", ".jpg").
func SplitExt(name string) (string, string) {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}

// MediaFileName is the file name an item's image is written under: the
// item id plus the extension of the source file. In-memory pixels are
// saved as PNG; anything else gets DefaultImageExt.
func MediaFileName(it *dataset.Item) string {
	ext := DefaultImageExt
	switch {
	case it.Media == nil:
	case it.Media.Path() != "":
		if _, e := SplitExt(it.Media.Path()); e != "" {
			ext = e
		}
	case it.Media.HasSource():
		ext = ".png"
	}
	return it.ID + ext
}

// SaveImage writes the item's image to dir/name. An existing source file
// is copied byte for byte; in-memory pixels are encoded as PNG. Items whose
// pixels are unavailable are skipped and reported with ok=false.
func SaveImage(it *dataset.Item, dir, name string) (ok bool, err error) {
	if it.Media == nil {
		return false, nil
	}
	dst := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, err
	}

	if src := it.Media.Path(); src != "" {
		if !IsFile(src) {
			return false, nil
		}
		if samePath(src, dst) {
			return true, nil
		}
		return true, copyFile(src, dst)
	}

	if !it.Media.HasSource() {
		return false, nil
	}
	img, err := it.Media.Data()
	if err != nil {
		return false, fmt.Errorf("decode image of %s/%s: %w", it.Subset, it.ID, err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return false, err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return false, fmt.Errorf("encode %s: %w", dst, err)
	}
	return true, f.Close()
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// WriteJSON writes v as indented JSON, creating parent directories.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON decodes the file at path into v. Input that is not JSON at all
// gives UNSUPPORTED_FORMAT; JSON whose fields have the wrong types gives
// CORRUPT_DATA. Filesystem errors are returned unchanged.
func ReadJSON(path, formatName string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	err = json.Unmarshal(data, v)
	if err == nil {
		return nil
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		return dserrors.UnsupportedFormat("file is not valid JSON").
			WithFormat(formatName).WithFile(path).WithError(err)
	case errors.As(err, &typeErr):
		return dserrors.CorruptData(fmt.Sprintf("field %q has the wrong type", typeErr.Field)).
			WithFormat(formatName).WithFile(path).WithError(err)
	}
	return dserrors.CorruptData("cannot decode file").
		WithFormat(formatName).WithFile(path).WithError(err)
}

// IsDir reports whether path is an existing directory.
func IsDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// IsFile reports whether path is an existing regular file.
func IsFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// FindImage looks for an image named stem with a common extension in dir.
func FindImage(dir, stem string) (string, bool) {
	for _, ext := range imageExts {
		p := filepath.Join(dir, stem+ext)
		if IsFile(p) {
			return p, true
		}
	}
	return "", false
}

var imageExts = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp", ".JPG", ".JPEG", ".PNG"}
