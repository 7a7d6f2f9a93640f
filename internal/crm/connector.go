// Package crm defines the contract with the remote CRM system. The real
// wire client lives behind the Connector interface; the pipeline only
// cares about create/query/describe and the retryable-or-not
// classification of failures.
package crm

import (
	"context"
	"errors"
	"fmt"

	"crmforge/internal/store"
)

// Connector is the remote-creation collaborator.
type Connector interface {
	// Create pushes one record and returns the externally-assigned ID.
	Create(ctx context.Context, objectType store.ObjectType, fields map[string]interface{}) (string, error)

	// Delete removes a previously created record, used by cleanup.
	Delete(ctx context.Context, objectType store.ObjectType, externalID string) error

	// Query runs a read-only query against the remote system.
	Query(ctx context.Context, soql string) ([]map[string]interface{}, error)

	// Describe returns the remote schema for an object type.
	Describe(ctx context.Context, objectType store.ObjectType) (*ObjectDescription, error)
}

// ObjectDescription is the remote system's view of an object type.
type ObjectDescription struct {
	Name   string
	Fields []FieldDescription
}

// FieldDescription describes one remote field.
type FieldDescription struct {
	Name      string
	Type      string
	Required  bool
	Reference bool
}

// CreationError wraps a remote creation failure with the connector's
// retryable/non-retryable classification. Rate limits and transient
// transport failures are retryable; validation rejections are not.
type CreationError struct {
	ObjectType store.ObjectType
	StatusCode int
	Message    string
	Transient  bool
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("remote creation of %s failed (%d): %s", e.ObjectType, e.StatusCode, e.Message)
}

// Retryable reports the connector's classification of this failure.
func (e *CreationError) Retryable() bool {
	return e.Transient
}

// IsRetryable reports whether an error anywhere in the chain classifies
// itself as retryable. Errors without a classification are treated as
// permanent, so a bug never retry-loops.
func IsRetryable(err error) bool {
	type retryable interface {
		Retryable() bool
	}
	for err != nil {
		if r, ok := err.(retryable); ok {
			return r.Retryable()
		}
		err = errors.Unwrap(err)
	}
	return false
}
