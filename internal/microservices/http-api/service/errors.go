package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"animetrack/internal/microservices/http-api/models"
	"animetrack/internal/shared"
)

var (
	ErrConflict            = errors.New("anime already in collection")
	ErrNotFound            = errors.New("collection item not found")
	ErrNoOp                = errors.New("update contains no recognized fields")
	ErrValidation          = errors.New("validation failed")
	ErrUpstreamUnavailable = shared.ErrUpstreamUnavailable
	ErrStoreFailure        = errors.New("store failure")
)

// ConflictError is returned when (user_id, anime_id) already exists.
// Existing may be nil if the item could not be re-read.
type ConflictError struct {
	Existing *models.CollectionItem
}

func (e *ConflictError) Error() string {
	return ErrConflict.Error()
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ValidationError lists field -> problem.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func storeFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
}
