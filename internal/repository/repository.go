// Package repository contains data access abstractions.
// Implementations live in subpackages (e.g., postgres) inside this directory.
package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist or has expired.
var ErrNotFound = errors.New("record not found")
