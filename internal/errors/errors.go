package errors

import (
	"errors"
	"fmt"
)

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}

type ErrFileWrite struct {
	Path string
	Err  error
}

func (e *ErrFileWrite) Error() string {
	return fmt.Sprintf("failed to write file %s: %v", e.Path, e.Err)
}

func (e *ErrFileWrite) Unwrap() error {
	return e.Err
}

// Vault errors

// ErrSecretUnavailable means the encryption secret could neither be read nor
// created. The process cannot protect credentials without it.
type ErrSecretUnavailable struct {
	Err error
}

func (e *ErrSecretUnavailable) Error() string {
	return fmt.Sprintf("secret unavailable: %v", e.Err)
}

func (e *ErrSecretUnavailable) Unwrap() error {
	return e.Err
}

// ErrCrypto covers authentication tag mismatches, truncated ciphertext and
// key mismatches.
type ErrCrypto struct {
	Field string
	Err   error
}

func (e *ErrCrypto) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("crypto failure on %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("crypto failure: %v", e.Err)
}

func (e *ErrCrypto) Unwrap() error {
	return e.Err
}

type ErrRecordNotFound struct {
	Kind string
	ID   string
}

func (e *ErrRecordNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

type ErrInvalidInput struct {
	Field  string
	Reason string
}

func (e *ErrInvalidInput) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsNotFound reports whether err is, or wraps, an ErrRecordNotFound.
func IsNotFound(err error) bool {
	var nf *ErrRecordNotFound
	return errors.As(err, &nf)
}

// IsCrypto reports whether err is, or wraps, an ErrCrypto.
func IsCrypto(err error) bool {
	var ce *ErrCrypto
	return errors.As(err, &ce)
}
