package dserrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := CorruptData("annotation references unknown image").
		WithFile("train/_annotations.coco.json").
		WithAnnotation(3, 17)

	assert.Equal(t,
		`CORRUPT_DATA: annotation references unknown image [annotation_id="17" annotation_index="3" file="train/_annotations.coco.json"]`,
		err.Error())
}

func TestError_WrapsUnderlying(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := UnsupportedFormat("not a coco file").WithError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "(unexpected EOF)")
}

func TestIsHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"unsupported", UnsupportedFormat("x"), IsUnsupportedFormat},
		{"corrupt", CorruptData("x"), IsCorruptData},
		{"geometry", InvalidGeometry("x"), IsInvalidGeometry},
		{"media", MediaDimensionUnknown("x"), IsMediaDimensionUnknown},
		{"unrepresentable", UnrepresentableAnnotation("x"), IsUnrepresentableAnnotation},
		{"duplicate", DuplicateLabel("cat"), IsDuplicateLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("import failed: %w", tt.err)
			assert.True(t, tt.check(wrapped))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestAs(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)

	e, ok := As(fmt.Errorf("ctx: %w", DuplicateLabel("dog")))
	require.True(t, ok)
	assert.Equal(t, CodeDuplicateLabel, e.Code)
	assert.Equal(t, "dog", e.Details["label"])
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusUnsupportedMediaType, StatusCode(UnsupportedFormat("x")))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusCode(CorruptData("x")))
	assert.Equal(t, http.StatusConflict, StatusCode(UnrepresentableAnnotation("x")))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("disk on fire")))
}

func TestWithItem(t *testing.T) {
	err := MediaDimensionUnknown("image size unknown").WithItem("a", "train")
	assert.Equal(t, "a", err.Details[DetailItem])
	assert.Equal(t, "train", err.Details[DetailSubset])
}
