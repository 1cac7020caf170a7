// Package dserrors provides the error taxonomy shared by the dataset engine
// and every format adapter.
//
// # Error Types
//
//   - UnsupportedFormat: the input does not carry the format's structural signature
//   - CorruptData: a recognised format with a referential or structural violation
//   - InvalidGeometry: a malformed shape payload
//   - MediaDimensionUnknown: geometry validation needs an image size nobody declared
//   - UnrepresentableAnnotation: the export target cannot encode an annotation
//   - DuplicateLabel: a strict category registry saw the same name twice
//
// # Usage
//
//	return dserrors.CorruptData("annotation references unknown image").
//		WithFile(path).
//		WithDetail("image_id", "17")
//
// Check error types:
//
//	if dserrors.IsCorruptData(err) {
//	    // Handle corrupt input
//	}
//
// Errors survive wrapping with fmt.Errorf and %w.
package dserrors
