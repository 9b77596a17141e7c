package dublincore

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// ExistenceChecker reports whether an event with the given id is already
// known remotely.
type ExistenceChecker interface {
	EventExists(ctx context.Context, id string) (bool, error)
}

// ValidIdentifierSyntax accepts only canonical RFC 4122 UUIDs of versions
// 1 to 5.
func ValidIdentifierSyntax(id string) bool {
	if len(id) != 36 {
		return false
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	if u.Variant() != uuid.RFC4122 {
		return false
	}
	return u.Version() >= 1 && u.Version() <= 5
}

// IdentifierValidator decides whether a requested identifier can become
// the media package id.
type IdentifierValidator struct {
	checker ExistenceChecker
	logger  *slog.Logger
}

func NewIdentifierValidator(checker ExistenceChecker, logger *slog.Logger) *IdentifierValidator {
	return &IdentifierValidator{checker: checker, logger: logger}
}

// Validate returns id when it is a well-formed UUID not yet used remotely,
// and "" otherwise.
func (v *IdentifierValidator) Validate(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}
	if !ValidIdentifierSyntax(id) {
		v.logger.Info("identifier is not a valid UUID, using generated id", "identifier", id)
		return ""
	}

	exists, err := v.checker.EventExists(ctx, id)
	if err != nil {
		v.logger.Warn("identifier existence check failed, assuming it is free", "identifier", id, "error", err)
		return id
	}
	if exists {
		v.logger.Info("identifier already exists, using generated id", "identifier", id)
		return ""
	}
	return id
}

// ApplyIdentifier validates the catalog's identifier and removes it when
// it cannot be used.
func (v *IdentifierValidator) ApplyIdentifier(ctx context.Context, c *Catalog) string {
	id := v.Validate(ctx, c.Get("identifier"))
	if id == "" {
		c.Delete("identifier")
	}
	return id
}
