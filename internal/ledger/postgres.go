package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/planops/capacity/internal/schema"
	"github.com/shopspring/decimal"
)

// Postgres is the pgx-backed Ledger. Per-key serialization comes from two
// mechanisms: single-statement ON CONFLICT upserts take the row lock, and
// the resource upsert (which has a fallback natural key and needs a
// read-merge-write) takes a transaction-scoped advisory lock on the key.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Ledger backed by the given connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Verify interface compliance.
var _ Ledger = (*Postgres)(nil)

// EnsureSchema creates the ledger tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS resources (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			contract_type TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			work_area TEXT NOT NULL DEFAULT '',
			employee_id TEXT NOT NULL DEFAULT '',
			activity_type_cap TEXT,
			activity_type_opx TEXT,
			total_available_hours NUMERIC,
			allocated_hours NUMERIC,
			remaining_capacity NUMERIC,
			snapshot_computed_at TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS resources_employee_id_key
			ON resources (employee_id) WHERE employee_id <> ''`,
		`CREATE UNIQUE INDEX IF NOT EXISTS resources_name_key
			ON resources (name) WHERE employee_id = ''`,
		`CREATE TABLE IF NOT EXISTS labour_rates (
			band TEXT NOT NULL,
			activity_type TEXT NOT NULL,
			fiscal_year TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			hourly_rate NUMERIC NOT NULL,
			daily_rate NUMERIC NOT NULL,
			dollar_uplift NUMERIC,
			percent_uplift NUMERIC,
			PRIMARY KEY (band, activity_type, fiscal_year)
		)`,
		`CREATE TABLE IF NOT EXISTS commitment_periods (
			id UUID PRIMARY KEY,
			resource_id UUID NOT NULL REFERENCES resources(id),
			period_start DATE NOT NULL,
			period_end DATE NOT NULL,
			frequency TEXT NOT NULL,
			hours_per_unit NUMERIC NOT NULL,
			UNIQUE (resource_id, period_start)
		)`,
		`CREATE TABLE IF NOT EXISTS allocations (
			id UUID PRIMARY KEY,
			resource_id UUID NOT NULL REFERENCES resources(id),
			hours NUMERIC NOT NULL,
			source TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS config_entries (
			config_type TEXT NOT NULL,
			ordinal INT NOT NULL,
			value TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (config_type, ordinal)
		)`,
		`CREATE TABLE IF NOT EXISTS import_runs (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			processed INT NOT NULL,
			imported INT NOT NULL,
			failed INT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring ledger schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) UpsertResource(ctx context.Context, r Resource) (Outcome, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin resource upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	// Advisory lock scoped to the natural key: released at commit/rollback.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, resourceNaturalKey(r)); err != nil {
		return 0, fmt.Errorf("locking resource key: %w", err)
	}

	var existingID string
	var lookupErr error
	if r.EmployeeID != "" {
		lookupErr = tx.QueryRow(ctx,
			`SELECT id FROM resources WHERE employee_id = $1
			 UNION ALL
			 SELECT id FROM resources WHERE employee_id = '' AND name = $2
			 LIMIT 1`,
			r.EmployeeID, r.Name).Scan(&existingID)
	} else {
		lookupErr = tx.QueryRow(ctx, `SELECT id FROM resources WHERE name = $1 LIMIT 1`, r.Name).Scan(&existingID)
	}

	outcome := Updated
	switch {
	case errors.Is(lookupErr, pgx.ErrNoRows):
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO resources (id, name, contract_type, email, work_area, employee_id, activity_type_cap, activity_type_opx)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.ID, r.Name, string(r.ContractType), r.Email, r.WorkArea, r.EmployeeID,
			bandActivityText(r.ActivityTypeCap), bandActivityText(r.ActivityTypeOpx))
		if err != nil {
			return 0, fmt.Errorf("inserting resource: %w", err)
		}
		outcome = Inserted

	case lookupErr != nil:
		return 0, fmt.Errorf("resolving resource key: %w", lookupErr)

	default:
		// Present fields overwrite; blank/nil optionals preserve stored values.
		_, err = tx.Exec(ctx,
			`UPDATE resources SET
				name = $2,
				contract_type = $3,
				email = COALESCE(NULLIF($4, ''), email),
				work_area = COALESCE(NULLIF($5, ''), work_area),
				employee_id = COALESCE(NULLIF($6, ''), employee_id),
				activity_type_cap = COALESCE($7, activity_type_cap),
				activity_type_opx = COALESCE($8, activity_type_opx)
			 WHERE id = $1`,
			existingID, r.Name, string(r.ContractType), r.Email, r.WorkArea, r.EmployeeID,
			bandActivityText(r.ActivityTypeCap), bandActivityText(r.ActivityTypeOpx))
		if err != nil {
			return 0, fmt.Errorf("updating resource: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit resource upsert: %w", err)
	}
	return outcome, nil
}

func (p *Postgres) GetResource(ctx context.Context, id string) (*Resource, error) {
	return p.scanResource(p.pool.QueryRow(ctx, resourceSelect+` WHERE id = $1`, id))
}

func (p *Postgres) FindResourceByName(ctx context.Context, name string) (*Resource, error) {
	return p.scanResource(p.pool.QueryRow(ctx, resourceSelect+` WHERE name = $1 LIMIT 1`, name))
}

const resourceSelect = `SELECT id, name, contract_type, email, work_area, employee_id,
	activity_type_cap, activity_type_opx,
	total_available_hours::text, allocated_hours::text, remaining_capacity::text, snapshot_computed_at
	FROM resources`

func (p *Postgres) scanResource(row pgx.Row) (*Resource, error) {
	var r Resource
	var contractType string
	var cap, opx, total, allocated, remaining pgtype.Text
	var computedAt pgtype.Timestamptz

	err := row.Scan(&r.ID, &r.Name, &contractType, &r.Email, &r.WorkArea, &r.EmployeeID,
		&cap, &opx, &total, &allocated, &remaining, &computedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning resource: %w", err)
	}

	r.ContractType = schema.ContractType(contractType)
	if r.ActivityTypeCap, err = parseStoredActivity(cap); err != nil {
		return nil, err
	}
	if r.ActivityTypeOpx, err = parseStoredActivity(opx); err != nil {
		return nil, err
	}

	if total.Valid && allocated.Valid && remaining.Valid {
		snap := CapacitySnapshot{ResourceID: r.ID, ComputedAt: computedAt.Time}
		if snap.TotalAvailableHours, err = decimal.NewFromString(total.String); err != nil {
			return nil, fmt.Errorf("stored total hours: %w", err)
		}
		if snap.AllocatedHours, err = decimal.NewFromString(allocated.String); err != nil {
			return nil, fmt.Errorf("stored allocated hours: %w", err)
		}
		if snap.RemainingCapacity, err = decimal.NewFromString(remaining.String); err != nil {
			return nil, fmt.Errorf("stored remaining capacity: %w", err)
		}
		r.Snapshot = &snap
	}
	return &r, nil
}

func (p *Postgres) SaveSnapshot(ctx context.Context, snap CapacitySnapshot) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE resources SET
			total_available_hours = $2::numeric,
			allocated_hours = $3::numeric,
			remaining_capacity = $4::numeric,
			snapshot_computed_at = $5
		 WHERE id = $1`,
		snap.ResourceID, snap.TotalAvailableHours.String(), snap.AllocatedHours.String(),
		snap.RemainingCapacity.String(), snap.ComputedAt)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpsertLabourRate(ctx context.Context, rate LabourRate) (Outcome, error) {
	var inserted bool
	err := p.pool.QueryRow(ctx,
		`INSERT INTO labour_rates (band, activity_type, fiscal_year, description, hourly_rate, daily_rate, dollar_uplift, percent_uplift)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric)
		 ON CONFLICT (band, activity_type, fiscal_year) DO UPDATE SET
			description = COALESCE(NULLIF(EXCLUDED.description, ''), labour_rates.description),
			hourly_rate = EXCLUDED.hourly_rate,
			daily_rate = EXCLUDED.daily_rate,
			dollar_uplift = COALESCE(EXCLUDED.dollar_uplift, labour_rates.dollar_uplift),
			percent_uplift = COALESCE(EXCLUDED.percent_uplift, labour_rates.percent_uplift)
		 RETURNING (xmax = 0)`,
		string(rate.Band), string(rate.ActivityType), rate.FiscalYear, rate.Description,
		rate.HourlyRate.String(), rate.DailyRate.String(),
		decimalText(rate.DollarUplift), decimalText(rate.PercentUplift)).Scan(&inserted)
	if err != nil {
		return 0, fmt.Errorf("upserting labour rate: %w", err)
	}
	if inserted {
		return Inserted, nil
	}
	return Updated, nil
}

func (p *Postgres) LabourRates(ctx context.Context, fiscalYear string) ([]LabourRate, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT band, activity_type, fiscal_year, description,
			hourly_rate::text, daily_rate::text, dollar_uplift::text, percent_uplift::text
		 FROM labour_rates
		 WHERE $1 = '' OR fiscal_year = $1
		 ORDER BY band, activity_type`, fiscalYear)
	if err != nil {
		return nil, fmt.Errorf("listing labour rates: %w", err)
	}
	defer rows.Close()

	var out []LabourRate
	for rows.Next() {
		var r LabourRate
		var band, activity, hourly, daily string
		var dollar, percent pgtype.Text
		if err := rows.Scan(&band, &activity, &r.FiscalYear, &r.Description, &hourly, &daily, &dollar, &percent); err != nil {
			return nil, fmt.Errorf("scanning labour rate: %w", err)
		}
		r.Band = schema.Band(band)
		r.ActivityType = schema.ActivityKind(activity)
		if r.HourlyRate, err = decimal.NewFromString(hourly); err != nil {
			return nil, fmt.Errorf("stored hourly rate: %w", err)
		}
		if r.DailyRate, err = decimal.NewFromString(daily); err != nil {
			return nil, fmt.Errorf("stored daily rate: %w", err)
		}
		if r.DollarUplift, err = parseStoredDecimal(dollar); err != nil {
			return nil, err
		}
		if r.PercentUplift, err = parseStoredDecimal(percent); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertCommitment(ctx context.Context, c CommitmentPeriod) (Outcome, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	var inserted bool
	err := p.pool.QueryRow(ctx,
		`INSERT INTO commitment_periods (id, resource_id, period_start, period_end, frequency, hours_per_unit)
		 VALUES ($1, $2, $3, $4, $5, $6::numeric)
		 ON CONFLICT (resource_id, period_start) DO UPDATE SET
			period_end = EXCLUDED.period_end,
			frequency = EXCLUDED.frequency,
			hours_per_unit = EXCLUDED.hours_per_unit
		 RETURNING (xmax = 0)`,
		c.ID, c.ResourceID, c.PeriodStart, c.PeriodEnd, string(c.Frequency), c.HoursPerUnit.String()).Scan(&inserted)
	if err != nil {
		return 0, fmt.Errorf("upserting commitment: %w", err)
	}
	if inserted {
		return Inserted, nil
	}
	return Updated, nil
}

func (p *Postgres) CommitmentsFor(ctx context.Context, resourceID string) ([]CommitmentPeriod, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, resource_id, period_start, period_end, frequency, hours_per_unit::text
		 FROM commitment_periods WHERE resource_id = $1 ORDER BY period_start`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("listing commitments: %w", err)
	}
	defer rows.Close()

	var out []CommitmentPeriod
	for rows.Next() {
		var c CommitmentPeriod
		var freq, hours string
		if err := rows.Scan(&c.ID, &c.ResourceID, &c.PeriodStart, &c.PeriodEnd, &freq, &hours); err != nil {
			return nil, fmt.Errorf("scanning commitment: %w", err)
		}
		c.Frequency = schema.Frequency(freq)
		if c.HoursPerUnit, err = decimal.NewFromString(hours); err != nil {
			return nil, fmt.Errorf("stored hours per unit: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) AddAllocation(ctx context.Context, a Allocation) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO allocations (id, resource_id, hours, source) VALUES ($1, $2, $3::numeric, $4)`,
		a.ID, a.ResourceID, a.Hours.String(), a.Source)
	if err != nil {
		return fmt.Errorf("adding allocation: %w", err)
	}
	return nil
}

func (p *Postgres) AllocationsFor(ctx context.Context, resourceID string) ([]Allocation, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, resource_id, hours::text, source FROM allocations WHERE resource_id = $1`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("listing allocations: %w", err)
	}
	defer rows.Close()

	var out []Allocation
	for rows.Next() {
		var a Allocation
		var hours string
		if err := rows.Scan(&a.ID, &a.ResourceID, &hours, &a.Source); err != nil {
			return nil, fmt.Errorf("scanning allocation: %w", err)
		}
		if a.Hours, err = decimal.NewFromString(hours); err != nil {
			return nil, fmt.Errorf("stored allocation hours: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertConfigEntry(ctx context.Context, e ConfigEntry) (Outcome, error) {
	var inserted bool
	err := p.pool.QueryRow(ctx,
		`INSERT INTO config_entries (config_type, ordinal, value, description)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (config_type, ordinal) DO UPDATE SET
			value = EXCLUDED.value,
			description = COALESCE(NULLIF(EXCLUDED.description, ''), config_entries.description)
		 RETURNING (xmax = 0)`,
		e.ConfigType, e.Position, e.Value, e.Description).Scan(&inserted)
	if err != nil {
		return 0, fmt.Errorf("upserting config entry: %w", err)
	}
	if inserted {
		return Inserted, nil
	}
	return Updated, nil
}

func (p *Postgres) RecordImportRun(ctx context.Context, run ImportRun) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO import_runs (id, kind, started_at, processed, imported, failed)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, string(run.Kind), run.StartedAt, run.Processed, run.Imported, run.Failed)
	if err != nil {
		return fmt.Errorf("recording import run: %w", err)
	}
	return nil
}

func (p *Postgres) ImportRuns(ctx context.Context) ([]ImportRun, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, kind, started_at, processed, imported, failed FROM import_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing import runs: %w", err)
	}
	defer rows.Close()

	var out []ImportRun
	for rows.Next() {
		var run ImportRun
		var kind string
		var started time.Time
		if err := rows.Scan(&run.ID, &kind, &started, &run.Processed, &run.Imported, &run.Failed); err != nil {
			return nil, fmt.Errorf("scanning import run: %w", err)
		}
		run.Kind = schema.ImportKind(kind)
		run.StartedAt = started
		out = append(out, run)
	}
	return out, rows.Err()
}

// bandActivityText maps a band/activity pairing to its stored text form,
// NULL for the not-applicable sentinel.
func bandActivityText(ba *schema.BandActivity) pgtype.Text {
	if ba == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: ba.String(), Valid: true}
}

func parseStoredActivity(t pgtype.Text) (*schema.BandActivity, error) {
	if !t.Valid {
		return nil, nil
	}
	ba, err := schema.ParseBandActivity(t.String)
	if err != nil {
		return nil, fmt.Errorf("stored band activity: %w", err)
	}
	return ba, nil
}

func decimalText(d *decimal.Decimal) pgtype.Text {
	if d == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: d.String(), Valid: true}
}

func parseStoredDecimal(t pgtype.Text) (*decimal.Decimal, error) {
	if !t.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(t.String)
	if err != nil {
		return nil, fmt.Errorf("stored decimal: %w", err)
	}
	return &d, nil
}
