// Package generate synthesizes a dataset's records: typed field schemas
// per CRM object, local identifier assignment, parent wiring, and
// activity timestamp scheduling.
package generate

import (
	"encoding/json"
	"fmt"
	"time"

	"crmforge/internal/store"

	"github.com/go-playground/validator/v10"
)

// validate checks field schemas at the generation boundary, so malformed
// content never enters the pipeline as free-form data.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Fields is implemented by every per-object field schema.
type Fields interface {
	ObjectType() store.ObjectType
}

// AccountFields is the schema for an Account record.
type AccountFields struct {
	Name              string  `json:"Name" validate:"required"`
	Industry          string  `json:"Industry,omitempty"`
	Website           string  `json:"Website,omitempty" validate:"omitempty,url"`
	Phone             string  `json:"Phone,omitempty"`
	NumberOfEmployees int     `json:"NumberOfEmployees,omitempty" validate:"gte=0"`
	AnnualRevenue     float64 `json:"AnnualRevenue,omitempty" validate:"gte=0"`
	BillingCity       string  `json:"BillingCity,omitempty"`
	BillingCountry    string  `json:"BillingCountry,omitempty"`
	Description       string  `json:"Description,omitempty"`
}

func (AccountFields) ObjectType() store.ObjectType { return store.ObjectAccount }

// ContactFields is the schema for a Contact record. AccountID carries the
// parent account's local identifier until injection rewrites it.
type ContactFields struct {
	FirstName string `json:"FirstName" validate:"required"`
	LastName  string `json:"LastName" validate:"required"`
	Email     string `json:"Email" validate:"required,email"`
	Title     string `json:"Title,omitempty"`
	Phone     string `json:"Phone,omitempty"`
	AccountID string `json:"AccountId,omitempty"`
}

func (ContactFields) ObjectType() store.ObjectType { return store.ObjectContact }

// OpportunityFields is the schema for an Opportunity record.
type OpportunityFields struct {
	Name      string    `json:"Name" validate:"required"`
	StageName string    `json:"StageName" validate:"required"`
	Amount    float64   `json:"Amount" validate:"gte=0"`
	CloseDate time.Time `json:"CloseDate" validate:"required"`
	AccountID string    `json:"AccountId,omitempty"`
}

func (OpportunityFields) ObjectType() store.ObjectType { return store.ObjectOpportunity }

// TaskFields is the schema for a Task activity. WhatID references the
// related opportunity by local identifier.
type TaskFields struct {
	Subject      string     `json:"Subject" validate:"required"`
	Status       string     `json:"Status,omitempty"`
	Priority     string     `json:"Priority,omitempty"`
	ActivityDate *time.Time `json:"ActivityDate,omitempty"`
	WhatID       string     `json:"WhatId,omitempty"`
}

func (TaskFields) ObjectType() store.ObjectType { return store.ObjectTask }

// EventFields is the schema for an Event activity.
type EventFields struct {
	Subject       string     `json:"Subject" validate:"required"`
	StartDateTime *time.Time `json:"StartDateTime,omitempty"`
	EndDateTime   *time.Time `json:"EndDateTime,omitempty"`
	WhatID        string     `json:"WhatId,omitempty"`
}

func (EventFields) ObjectType() store.ObjectType { return store.ObjectEvent }

// marshalFields validates a schema and serializes it for storage.
func marshalFields(f Fields) (json.RawMessage, error) {
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("invalid %s fields: %w", f.ObjectType(), err)
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s fields: %w", f.ObjectType(), err)
	}
	return raw, nil
}
