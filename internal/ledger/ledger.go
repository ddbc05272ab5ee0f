// Package ledger owns persisted resource, labour-rate, commitment, and
// allocation records. It is injected into the import orchestrator and the
// capacity engine so tests can substitute the in-memory implementation for
// the Postgres one.
//
// Upserts resolve conflicts by natural business key, not surrogate id. The
// contract: fields present on the incoming record overwrite stored ones;
// absent optional fields are left unchanged (incremental re-import), and
// repeating the same upsert converges to the same stored state.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/planops/capacity/internal/schema"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// Outcome reports whether an upsert created a new record or updated an
// existing one.
type Outcome int

const (
	Inserted Outcome = iota
	Updated
)

func (o Outcome) String() string {
	if o == Inserted {
		return "inserted"
	}
	return "updated"
}

// Resource is a person or squad that capacity is planned against.
// EmployeeID, when present, is the natural key; otherwise Name.
type Resource struct {
	ID           string
	Name         string
	ContractType schema.ContractType
	Email        string
	WorkArea     string
	EmployeeID   string

	// Band/activity pairings; nil means not applicable.
	ActivityTypeCap *schema.BandActivity
	ActivityTypeOpx *schema.BandActivity

	// Snapshot is derived by the capacity engine and written back here.
	// Nil until the first commitment exists for this resource.
	Snapshot *CapacitySnapshot
}

// CapacitySnapshot is the derived available-vs-allocated summary for a
// resource. RemainingCapacity may be negative: that is a reportable
// over-allocation state, not an error.
type CapacitySnapshot struct {
	ResourceID          string
	TotalAvailableHours decimal.Decimal
	AllocatedHours      decimal.Decimal
	RemainingCapacity   decimal.Decimal
	ComputedAt          time.Time
}

// LabourRate is one rate-card row, keyed by (band, activity type, fiscal year).
type LabourRate struct {
	Band         schema.Band
	Description  string
	ActivityType schema.ActivityKind
	HourlyRate   decimal.Decimal
	DailyRate    decimal.Decimal

	// Uplifts are optional; nil means not supplied.
	DollarUplift  *decimal.Decimal
	PercentUplift *decimal.Decimal

	FiscalYear string
}

// CommitmentPeriod declares a resource's availability over a date span,
// keyed by (resource, period start).
type CommitmentPeriod struct {
	ID           string
	ResourceID   string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Frequency    schema.Frequency
	HoursPerUnit decimal.Decimal
}

// Allocation is work already assigned to a resource. Allocations are an
// external input: the ledger stores them, the capacity engine sums them.
type Allocation struct {
	ID         string
	ResourceID string
	Hours      decimal.Decimal
	Source     string
}

// ConfigEntry is one ordered epic/feature picklist value,
// keyed by (config type, position).
type ConfigEntry struct {
	ConfigType  string
	Value       string
	Description string
	Position    int
}

// ImportRun records one import execution for audit listing.
type ImportRun struct {
	ID        string
	Kind      schema.ImportKind
	StartedAt time.Time
	Processed int
	Imported  int
	Failed    int
}

// Ledger is the persistence contract consumed by the orchestrator and the
// capacity engine. Implementations must serialize mutations per natural key:
// no two upserts for the same key may interleave.
type Ledger interface {
	UpsertResource(ctx context.Context, r Resource) (Outcome, error)
	GetResource(ctx context.Context, id string) (*Resource, error)
	FindResourceByName(ctx context.Context, name string) (*Resource, error)
	SaveSnapshot(ctx context.Context, snap CapacitySnapshot) error

	UpsertLabourRate(ctx context.Context, rate LabourRate) (Outcome, error)
	LabourRates(ctx context.Context, fiscalYear string) ([]LabourRate, error)

	UpsertCommitment(ctx context.Context, c CommitmentPeriod) (Outcome, error)
	CommitmentsFor(ctx context.Context, resourceID string) ([]CommitmentPeriod, error)

	AddAllocation(ctx context.Context, a Allocation) error
	AllocationsFor(ctx context.Context, resourceID string) ([]Allocation, error)

	UpsertConfigEntry(ctx context.Context, e ConfigEntry) (Outcome, error)

	RecordImportRun(ctx context.Context, run ImportRun) error
	ImportRuns(ctx context.Context) ([]ImportRun, error)
}
