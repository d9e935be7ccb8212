package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassificationThroughWrapping(t *testing.T) {
	conflict := fmt.Errorf("cancel job: %w", ConflictError{Entity: "job", ID: "j1", Current: "success", Target: "cancelled"})
	assert.True(t, IsConflict(conflict))
	assert.False(t, IsNotFound(conflict))

	notFound := fmt.Errorf("move stage: %w", NewNotFoundError("stage", "s9"))
	assert.True(t, IsNotFound(notFound))
	assert.Equal(t, "move stage: stage not found: s9", notFound.Error())

	assert.True(t, IsValidation(NewValidationError("file_name", "", "required")))
}

func TestPersistenceErrorKeepsCause(t *testing.T) {
	err := NewPersistenceError("reorder stages", sql.ErrTxDone)
	assert.True(t, IsPersistence(err))
	assert.True(t, errors.Is(err, sql.ErrTxDone))

	// already classified errors are not double wrapped
	again := NewPersistenceError("outer", err)
	assert.Equal(t, err, again)

	assert.Nil(t, NewPersistenceError("noop", nil))
}

func TestDependencyErrorMessage(t *testing.T) {
	err := DependencyError{Dependency: "webhook", StatusCode: 502}
	assert.Equal(t, "webhook failed with HTTP 502", err.Error())

	wrapped := NewDependencyError("object store", errors.New("connection reset"))
	assert.True(t, IsDependency(wrapped))
	assert.Equal(t, "object store failed: connection reset", wrapped.Error())
}
