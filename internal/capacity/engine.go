// Package capacity derives available-vs-allocated hours for a resource from
// its commitment declarations.
//
// The engine owns the derivation formula but no persisted state: it reads
// commitments and allocations from the ledger and writes the snapshot back
// onto the owning resource record. Snapshots are recomputed eagerly on every
// trigger, never lazily from stale inputs.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/planops/capacity/internal/ledger"
	"github.com/planops/capacity/internal/schema"
	"github.com/shopspring/decimal"
)

// Hours-per-unit bounds for a commitment declaration.
var (
	MinHoursPerUnit = decimal.RequireFromString("0.5")
	MaxHoursPerUnit = decimal.NewFromInt(24)
)

// InvalidPeriodError reports a commitment whose end date precedes its start.
type InvalidPeriodError struct {
	Start, End time.Time
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("invalid period: end %s before start %s",
		e.End.Format("02-01-2006"), e.Start.Format("02-01-2006"))
}

// InvalidHoursError reports an hours-per-unit outside [0.5, 24].
type InvalidHoursError struct {
	Hours decimal.Decimal
}

func (e *InvalidHoursError) Error() string {
	return fmt.Sprintf("invalid hours per unit %s: must be between %s and %s",
		e.Hours, MinHoursPerUnit, MaxHoursPerUnit)
}

// UnknownResourceError reports a commitment or allocation against a resource
// the ledger does not know.
type UnknownResourceError struct {
	ResourceID string
}

func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("unknown resource %q", e.ResourceID)
}

// Engine recomputes capacity snapshots in response to two triggers:
// CommitmentCreated and AllocationChanged. The read-modify-write of a
// resource's snapshot is serialized per resource id.
type Engine struct {
	ledger ledger.Ledger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an engine over the given ledger.
func New(l ledger.Ledger) *Engine {
	return &Engine{ledger: l, locks: make(map[string]*sync.Mutex)}
}

// lockResource serializes snapshot recomputation per resource id.
func (e *Engine) lockResource(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// UnitCount converts a validated period and frequency into the number of
// charging units. The day span is inclusive of both endpoints; weekly and
// fortnightly counts round up so a partial week still charges a full unit.
func UnitCount(start, end time.Time, freq schema.Frequency) (int64, error) {
	daySpan := int64(end.Sub(start).Hours()/24) + 1

	switch freq {
	case schema.PerDay:
		return daySpan, nil
	case schema.PerWeek:
		return (daySpan + 6) / 7, nil
	case schema.PerFortnight:
		return (daySpan + 13) / 14, nil
	default:
		return 0, fmt.Errorf("unknown frequency %q", freq)
	}
}

// TotalAvailableHours computes unitCount × hoursPerUnit for a commitment,
// rejecting invalid periods and out-of-range hours before any calculation.
func TotalAvailableHours(start, end time.Time, freq schema.Frequency, hoursPerUnit decimal.Decimal) (decimal.Decimal, error) {
	if end.Before(start) {
		return decimal.Decimal{}, &InvalidPeriodError{Start: start, End: end}
	}
	if hoursPerUnit.LessThan(MinHoursPerUnit) || hoursPerUnit.GreaterThan(MaxHoursPerUnit) {
		return decimal.Decimal{}, &InvalidHoursError{Hours: hoursPerUnit}
	}

	units, err := UnitCount(start, end, freq)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return hoursPerUnit.Mul(decimal.NewFromInt(units)), nil
}

// CommitmentCreated validates and persists a commitment, then recomputes the
// resource's snapshot. On any rejection the commitment is not stored and no
// snapshot is written.
func (e *Engine) CommitmentCreated(ctx context.Context, c ledger.CommitmentPeriod) (*ledger.CapacitySnapshot, error) {
	// Validation precedes any state change.
	if _, err := TotalAvailableHours(c.PeriodStart, c.PeriodEnd, c.Frequency, c.HoursPerUnit); err != nil {
		return nil, err
	}
	if _, err := e.ledger.GetResource(ctx, c.ResourceID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, &UnknownResourceError{ResourceID: c.ResourceID}
		}
		return nil, fmt.Errorf("looking up resource: %w", err)
	}

	unlock := e.lockResource(c.ResourceID)
	defer unlock()

	if _, err := e.ledger.UpsertCommitment(ctx, c); err != nil {
		return nil, fmt.Errorf("storing commitment: %w", err)
	}
	return e.recomputeLocked(ctx, c.ResourceID)
}

// AllocationChanged recomputes the snapshot after allocations for the
// resource were added, removed, or re-pointed.
func (e *Engine) AllocationChanged(ctx context.Context, resourceID string) (*ledger.CapacitySnapshot, error) {
	if _, err := e.ledger.GetResource(ctx, resourceID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, &UnknownResourceError{ResourceID: resourceID}
		}
		return nil, fmt.Errorf("looking up resource: %w", err)
	}

	unlock := e.lockResource(resourceID)
	defer unlock()

	return e.recomputeLocked(ctx, resourceID)
}

// recomputeLocked rebuilds the snapshot from current commitments and
// allocations. Caller holds the per-resource lock.
func (e *Engine) recomputeLocked(ctx context.Context, resourceID string) (*ledger.CapacitySnapshot, error) {
	commitments, err := e.ledger.CommitmentsFor(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("reading commitments: %w", err)
	}

	total := decimal.Zero
	for _, c := range commitments {
		hours, err := TotalAvailableHours(c.PeriodStart, c.PeriodEnd, c.Frequency, c.HoursPerUnit)
		if err != nil {
			return nil, fmt.Errorf("commitment %s: %w", c.ID, err)
		}
		total = total.Add(hours)
	}

	allocations, err := e.ledger.AllocationsFor(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("reading allocations: %w", err)
	}

	allocated := decimal.Zero
	for _, a := range allocations {
		allocated = allocated.Add(a.Hours)
	}

	// Remaining capacity may go negative: over-allocation is a reportable
	// state, not an error.
	snap := ledger.CapacitySnapshot{
		ResourceID:          resourceID,
		TotalAvailableHours: total,
		AllocatedHours:      allocated,
		RemainingCapacity:   total.Sub(allocated),
		ComputedAt:          time.Now().UTC(),
	}

	if err := e.ledger.SaveSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("saving snapshot: %w", err)
	}
	return &snap, nil
}
