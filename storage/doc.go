// Package storage holds docket images. A Bucket mirrors the object-storage
// calls the intake path needs (upload without overwrite, list a folder, read
// back, delete) so a filesystem bucket can stand in for a hosted one.
package storage
