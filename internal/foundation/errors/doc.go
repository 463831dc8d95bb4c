// Package errors provides the classified error primitives used across appshelf.
//
// Startup failures (configuration, schema, template directory) and the
// catastrophic "nothing to render" outcome are reported as ClassifiedError
// values so the CLI can pick an exit code and a presentation. Per-record and
// per-page problems are not errors in this sense; they are diagnostics (see
// internal/diag) and never abort a build.
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryConfig, "schema file unreadable").
//		WithContext("path", schemaPath).
//		WithCause(readErr).
//		Build()
package errors
