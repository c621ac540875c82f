package morph

import (
	"errors"
	"fmt"
)

// Error types for specific failure scenarios in record conversion

// ErrSchemaNotConverted is returned when record conversion is attempted
// before the schema has been converted.
var ErrSchemaNotConverted = errors.New("schema has not been converted")

// ErrConverterClosed is returned when a converter is used after Close.
var ErrConverterClosed = errors.New("converter is closed")

// ErrConverterNotInitialized is returned when a converter that requires
// initialization is used before Init.
var ErrConverterNotInitialized = errors.New("converter is not initialized")

// ConversionError reports that a single record could not be converted.
// It is the only failure kind counted by the records-failed instrument;
// any other error escaping a converter propagates unclassified.
type ConversionError struct {
	// ConverterName is an optional identifier for the converter that failed
	ConverterName string
	// OriginalError is the underlying error that occurred
	OriginalError error
}

// Error implements the error interface for ConversionError.
func (e *ConversionError) Error() string {
	if e.ConverterName != "" {
		return fmt.Sprintf("converter %q: conversion failed: %v", e.ConverterName, e.OriginalError)
	}
	return fmt.Sprintf("conversion failed: %v", e.OriginalError)
}

// Unwrap returns the underlying error for compatibility with errors.Is and errors.As.
func (e *ConversionError) Unwrap() error {
	return e.OriginalError
}

// NewConversionError creates a new ConversionError with the provided details.
func NewConversionError(converterName string, err error) *ConversionError {
	return &ConversionError{
		ConverterName: converterName,
		OriginalError: err,
	}
}

// IsConversionError reports whether err is, or wraps, a ConversionError.
func IsConversionError(err error) bool {
	var ce *ConversionError
	return errors.As(err, &ce)
}

// SchemaConversionError reports that an input schema could not be converted.
// Schema failures are not counted by the record instruments.
type SchemaConversionError struct {
	// ConverterName is an optional identifier for the converter that failed
	ConverterName string
	// OriginalError is the underlying error that occurred
	OriginalError error
}

// Error implements the error interface for SchemaConversionError.
func (e *SchemaConversionError) Error() string {
	if e.ConverterName != "" {
		return fmt.Sprintf("converter %q: schema conversion failed: %v", e.ConverterName, e.OriginalError)
	}
	return fmt.Sprintf("schema conversion failed: %v", e.OriginalError)
}

// Unwrap returns the underlying error for compatibility with errors.Is and errors.As.
func (e *SchemaConversionError) Unwrap() error {
	return e.OriginalError
}

// NewSchemaConversionError creates a new SchemaConversionError with the provided details.
func NewSchemaConversionError(converterName string, err error) *SchemaConversionError {
	return &SchemaConversionError{
		ConverterName: converterName,
		OriginalError: err,
	}
}

// InitError reports a failure during converter initialization. Initialization
// failures are fatal: a converter whose metric instruments could not be
// created must not process records.
type InitError struct {
	// ConverterName is an optional identifier for the converter being initialized
	ConverterName string
	// OriginalError is the underlying error that occurred
	OriginalError error
}

// Error implements the error interface for InitError.
func (e *InitError) Error() string {
	if e.ConverterName != "" {
		return fmt.Sprintf("converter %q: initialization failed: %v", e.ConverterName, e.OriginalError)
	}
	return fmt.Sprintf("converter initialization failed: %v", e.OriginalError)
}

// Unwrap returns the underlying error for compatibility with errors.Is and errors.As.
func (e *InitError) Unwrap() error {
	return e.OriginalError
}

// NewInitError creates a new InitError with the provided details.
func NewInitError(converterName string, err error) *InitError {
	return &InitError{
		ConverterName: converterName,
		OriginalError: err,
	}
}
