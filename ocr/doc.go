// Package ocr defines the abstraction layer for plugging OCR engines (a
// hosted document-processing function, Google Document AI, or a local
// Tesseract install) into the docket pipeline. The interfaces are small and
// transport-agnostic so engines can be backed by local binaries, native
// libraries, or remote APIs without leaking provider-specific concerns into
// callers.
package ocr
