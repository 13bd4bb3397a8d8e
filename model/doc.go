// Package model provides the canonical, editable representation of a
// presentation document.
//
// All extraction produces these types and every reconciliation consumes
// them, making them the contract between the container reader, the edit
// overlay, and the writer.
//
// # Document Structure
//
// A [Document] owns an ordered list of [Slide] values. Each slide owns an
// ordered list of [Shape] values:
//
//	doc := model.NewDocument()
//	doc.AddSlide(slide)
//
// # Shapes
//
// [Shape] is a tagged union over a closed set of kinds ([Kind]). Exactly one
// payload pointer is populated for the structured kinds:
//
//   - [KindTextContainer], [KindAutoShape], [KindPlaceholder] - Text
//   - [KindTable] - Table
//   - [KindPicture] - Picture
//   - [KindGroup] - Group (children with group-relative geometry)
//   - [KindChart], [KindSmartArt], [KindLine], [KindUnknown] - Opaque
//
// # Text
//
// A text payload is a sequence of [Paragraph] values, each a sequence of
// [Run] values. A run carries an optional [Format] snapshot (nil fields
// inherit from the style chain) and a [Boundary] token that lets the writer
// target the exact source formatting element.
//
// # Geometry
//
// Positions are EMUs. Children of a group store geometry relative to the
// group's original bounding box; [AbsoluteGeometry] composes the chain.
//
// # Errors
//
// The error taxonomy ([UnreadableContainerError], [UnsupportedPartError],
// [StructuralDriftError], [OverlayShapeNotFoundError],
// [MalformedOverlayError]) and [Warning] live here so that every layer
// reports non-fatal problems the same way.
package model
