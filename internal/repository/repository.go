// Package repository implements the business datastore collaborators that
// feed the knowledge base cache.
package repository

import "errors"

// ErrBusinessNotFound is returned when no configuration exists for a business id.
var ErrBusinessNotFound = errors.New("repository: business not found")
