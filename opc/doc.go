// Package opc reads and rewrites Open Packaging Conventions containers: the
// ZIP-of-XML-parts layout shared by the Office Open XML formats.
//
// A [Package] gives read access to parts, their relationships and declared
// content types. A [Writer] records a mutation plan against a package and
// serializes a new container in which every part that was not replaced is
// copied raw, so untouched parts keep their exact compressed bytes.
package opc
