package yoloprep

import (
	"errors"
	"fmt"
)

// Errors that abort an operation before any file is written or moved.
var (
	ErrMissingInput = errors.New("input directory not found")
	ErrEmptyCorpus  = errors.New("no input files found")
	ErrInvalidRatio = errors.New("train ratio must be in (0, 1)")
)

// ParseError is recorded when an annotation file cannot be parsed or lacks a required field.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnknownClassError is recorded for an object whose class is not in the ClassTable.
type UnknownClassError struct {
	Path  string
	Class string
}

func (e *UnknownClassError) Error() string {
	return fmt.Sprintf("unknown class %q in %q", e.Class, e.Path)
}

// UnpairedEntryError is recorded for an image without a label file of the same stem.
type UnpairedEntryError struct {
	ImagePath string
	LabelPath string
}

func (e *UnpairedEntryError) Error() string {
	return fmt.Sprintf("no label file %q for %q", e.LabelPath, e.ImagePath)
}

// FileError ties a per-item failure to the file it occurred in.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e FileError) Unwrap() error { return e.Err }
