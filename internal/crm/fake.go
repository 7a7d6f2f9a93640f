package crm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"crmforge/internal/store"
)

// Fake is an in-memory Connector for tests and local development. It
// assigns sequential external IDs and can be told to fail specific local
// records.
type Fake struct {
	mu      sync.Mutex
	nextID  int
	Created []FakeRecord

	// FailOn maps a field value (typically the record's Name) to the
	// error Create should return for it.
	FailOn map[string]error
}

// FakeRecord is one record the fake accepted.
type FakeRecord struct {
	ExternalID string
	ObjectType store.ObjectType
	Fields     map[string]interface{}
}

// NewFake returns an empty in-memory connector.
func NewFake() *Fake {
	return &Fake{FailOn: map[string]error{}}
}

// Create assigns the next sequential external ID.
func (f *Fake) Create(ctx context.Context, objectType store.ObjectType, fields map[string]interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if name, ok := fields["Name"].(string); ok {
		if err, failed := f.FailOn[name]; failed {
			return "", err
		}
	}

	f.nextID++
	externalID := fmt.Sprintf("ext-%06d", f.nextID)
	f.Created = append(f.Created, FakeRecord{
		ExternalID: externalID,
		ObjectType: objectType,
		Fields:     fields,
	})
	return externalID, nil
}

// Delete removes a record by external ID.
func (f *Fake) Delete(ctx context.Context, objectType store.ObjectType, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, r := range f.Created {
		if r.ExternalID == externalID {
			f.Created = append(f.Created[:i], f.Created[i+1:]...)
			return nil
		}
	}
	return &CreationError{ObjectType: objectType, StatusCode: 404, Message: "no such record"}
}

// ErrQueryNotSupported is returned by Fake.Query; the in-memory fake
// has no query engine.
var ErrQueryNotSupported = errors.New("query is not supported by the fake connector")

// Query is unsupported on the fake.
func (f *Fake) Query(ctx context.Context, soql string) ([]map[string]interface{}, error) {
	return nil, ErrQueryNotSupported
}

// Describe returns a minimal static description.
func (f *Fake) Describe(ctx context.Context, objectType store.ObjectType) (*ObjectDescription, error) {
	return &ObjectDescription{Name: string(objectType)}, nil
}
