package generate

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"crmforge/internal/schedule"
	"crmforge/internal/store"

	"github.com/google/uuid"
)

// ContentGenerator is the content-generation collaborator: given an
// object type and the dataset's scenario/industry context it returns
// field values for one record. It has no side effects visible to the
// pipeline.
type ContentGenerator interface {
	Generate(ctx context.Context, objectType store.ObjectType, scenario, industry string) (Fields, error)
}

// Request describes one generation run.
type Request struct {
	DatasetID uuid.UUID
	Counts    map[store.ObjectType]int
	Scenario  string
	Industry  string
}

// Executor builds a dataset's records in memory. Persistence is the
// caller's concern, so the executor stays testable without a database.
type Executor struct {
	content  ContentGenerator
	schedCfg schedule.Config
	density  schedule.Density
	rng      *rand.Rand

	// Progress is called after each object type completes; it may be nil.
	Progress func(objectType store.ObjectType, produced, total int)

	// Cancelled is polled between object types for cooperative
	// cancellation; it may be nil.
	Cancelled func(ctx context.Context) bool
}

// NewExecutor creates a generation executor. The random source is
// injected so test runs are reproducible.
func NewExecutor(content ContentGenerator, schedCfg schedule.Config, density schedule.Density, rng *rand.Rand) *Executor {
	if density == "" {
		density = schedule.DensityUniform
	}
	return &Executor{content: content, schedCfg: schedCfg, density: density, rng: rng}
}

// ErrCancelled is returned when the executor observes cancellation.
var ErrCancelled = fmt.Errorf("generation cancelled")

// generationOrder fixes the object sequence so parents exist before
// children are wired to them.
var generationOrder = []store.ObjectType{
	store.ObjectAccount,
	store.ObjectContact,
	store.ObjectOpportunity,
	store.ObjectTask,
	store.ObjectEvent,
}

// Run produces the full record set for the request: accounts first, then
// contacts and opportunities attached to accounts round-robin, then
// tasks and events attached to opportunities with scheduled timestamps.
func (e *Executor) Run(ctx context.Context, req Request) ([]store.DatasetRecord, error) {
	total := 0
	for _, n := range req.Counts {
		total += n
	}

	b := &builder{exec: e, req: req, now: time.Now().UTC()}

	produced := 0
	for _, objectType := range generationOrder {
		if e.Cancelled != nil && e.Cancelled(ctx) {
			return nil, ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		count := req.Counts[objectType]
		if count <= 0 {
			continue
		}

		if err := b.produce(ctx, objectType, count); err != nil {
			return nil, err
		}

		produced += count
		if e.Progress != nil {
			e.Progress(objectType, produced, total)
		}
	}

	return b.records, nil
}

// builder accumulates records and the parent pools children attach to.
type builder struct {
	exec *Executor
	req  Request
	now  time.Time

	records       []store.DatasetRecord
	accounts      []string // local IDs
	opportunities []opportunityRef
	seq           map[store.ObjectType]int
}

type opportunityRef struct {
	localID string
	window  schedule.Window
}

func (b *builder) produce(ctx context.Context, objectType store.ObjectType, count int) error {
	for i := 0; i < count; i++ {
		fields, err := b.exec.content.Generate(ctx, objectType, b.req.Scenario, b.req.Industry)
		if err != nil {
			return fmt.Errorf("content generation for %s failed: %w", objectType, err)
		}
		if fields.ObjectType() != objectType {
			return fmt.Errorf("content generator returned %s fields for %s", fields.ObjectType(), objectType)
		}

		localID := b.nextLocalID(objectType)
		var parent *string

		switch f := fields.(type) {
		case *AccountFields:
			b.accounts = append(b.accounts, localID)

		case *ContactFields:
			if acct := b.pickAccount(i); acct != "" {
				f.AccountID = acct
				parent = &acct
			}

		case *OpportunityFields:
			if acct := b.pickAccount(i); acct != "" {
				f.AccountID = acct
				parent = &acct
			}
			b.opportunities = append(b.opportunities, opportunityRef{
				localID: localID,
				window:  schedule.SalesCycleWindow(f.CloseDate, f.StageName),
			})

		case *TaskFields:
			if opp, when := b.pickActivitySlot(i); opp != "" {
				f.WhatID = opp
				parent = &opp
				f.ActivityDate = &when
			}

		case *EventFields:
			if opp, when := b.pickActivitySlot(i); opp != "" {
				f.WhatID = opp
				parent = &opp
				f.StartDateTime = &when
				end := when.Add(time.Hour)
				f.EndDateTime = &end
			}

		default:
			return fmt.Errorf("unsupported object type %s", objectType)
		}

		raw, err := marshalFields(fields)
		if err != nil {
			return err
		}

		b.records = append(b.records, store.DatasetRecord{
			ID:            uuid.New(),
			DatasetID:     b.req.DatasetID,
			ObjectType:    objectType,
			LocalID:       localID,
			ParentLocalID: parent,
			Fields:        raw,
			Status:        store.RecordStatusGenerated,
			CreatedAt:     b.now,
		})
	}
	return nil
}

func (b *builder) nextLocalID(objectType store.ObjectType) string {
	if b.seq == nil {
		b.seq = make(map[store.ObjectType]int)
	}
	b.seq[objectType]++
	return store.FormatLocalID(objectType, b.seq[objectType])
}

// pickAccount attaches the i-th child to an account round-robin.
func (b *builder) pickAccount(i int) string {
	if len(b.accounts) == 0 {
		return ""
	}
	return b.accounts[i%len(b.accounts)]
}

// pickActivitySlot attaches the i-th activity to an opportunity
// round-robin and draws one timestamp from that opportunity's sales
// cycle window.
func (b *builder) pickActivitySlot(i int) (string, time.Time) {
	if len(b.opportunities) == 0 {
		return "", time.Time{}
	}
	opp := b.opportunities[i%len(b.opportunities)]
	slots := schedule.ActivitySlots(b.exec.rng, b.exec.schedCfg, 1, opp.window, b.exec.density)
	return opp.localID, slots[0]
}
