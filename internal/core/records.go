package core

// records.go converts validated rows into ledger records. The accessors
// assume validation already ran: a typed getter on a column the template
// never declared returns the zero value, which validation makes unreachable
// for required columns.

import (
	"time"

	"github.com/planops/capacity/internal/ledger"
	"github.com/planops/capacity/internal/schema"
	"github.com/shopspring/decimal"
)

// Record is one validated data row: column name to typed value, tagged with
// its 1-based source row for error reporting.
type Record struct {
	Row    int
	Values map[string]schema.Value
}

// Text returns the string value of a column, or "" when absent.
func (r *Record) Text(name string) string {
	return r.Values[name].Text
}

// Decimal returns the numeric value of a column, or zero when absent.
func (r *Record) Decimal(name string) decimal.Decimal {
	return r.Values[name].Number
}

// OptionalDecimal returns the numeric value, or nil when the cell was blank.
func (r *Record) OptionalDecimal(name string) *decimal.Decimal {
	v, ok := r.Values[name]
	if !ok || !v.Present {
		return nil
	}
	d := v.Number
	return &d
}

// Date returns the date value of a column.
func (r *Record) Date(name string) time.Time {
	return r.Values[name].Date
}

// Activity returns the band/activity pairing, or nil for the not-applicable
// sentinel.
func (r *Record) Activity(name string) *schema.BandActivity {
	return r.Values[name].Activity
}

func buildLabourRate(rec *Record, fiscalYear string) ledger.LabourRate {
	return ledger.LabourRate{
		Band:          schema.Band(rec.Text(schema.ColBand)),
		Description:   rec.Text(schema.ColDescription),
		ActivityType:  schema.ActivityKind(rec.Text(schema.ColActivityType)),
		HourlyRate:    rec.Decimal(schema.ColHourlyRate),
		DailyRate:     rec.Decimal(schema.ColDailyRate),
		DollarUplift:  rec.OptionalDecimal(schema.ColDollarUplift),
		PercentUplift: rec.OptionalDecimal(schema.ColPercentUplift),
		FiscalYear:    fiscalYear,
	}
}

func buildResource(rec *Record) ledger.Resource {
	return ledger.Resource{
		ID:              rec.Text(schema.ColResourceID),
		Name:            rec.Text(schema.ColResourceName),
		ContractType:    schema.ContractType(rec.Text(schema.ColContractType)),
		Email:           rec.Text(schema.ColEmail),
		WorkArea:        rec.Text(schema.ColWorkArea),
		EmployeeID:      rec.Text(schema.ColEmployeeID),
		ActivityTypeCap: rec.Activity(schema.ColActivityTypeCap),
		ActivityTypeOpx: rec.Activity(schema.ColActivityTypeOpx),
	}
}

func buildCommitment(rec *Record, resourceID string) ledger.CommitmentPeriod {
	return ledger.CommitmentPeriod{
		ResourceID:   resourceID,
		PeriodStart:  rec.Date(schema.ColPeriodStart),
		PeriodEnd:    rec.Date(schema.ColPeriodEnd),
		Frequency:    schema.Frequency(rec.Text(schema.ColFrequency)),
		HoursPerUnit: rec.Decimal(schema.ColHoursPerUnit),
	}
}

func buildConfigEntry(rec *Record) ledger.ConfigEntry {
	return ledger.ConfigEntry{
		ConfigType:  rec.Text(schema.ColConfigType),
		Value:       rec.Text(schema.ColConfigValue),
		Description: rec.Text(schema.ColDescription),
		Position:    rec.Row,
	}
}

// dailyRateTolerance is the band around 8× hourly within which a daily rate
// is considered consistent.
var (
	hoursPerDay        = decimal.NewFromInt(8)
	dailyRateTolerance = decimal.RequireFromString("0.1")
)

// upliftWarning flags a labour-rate row whose daily rate strays more than
// 10% from 8× the hourly rate. Advisory only: the row still imports.
func upliftWarning(rec *Record) *RowError {
	hourly := rec.Decimal(schema.ColHourlyRate)
	daily := rec.Decimal(schema.ColDailyRate)

	expected := hourly.Mul(hoursPerDay)
	if expected.IsZero() {
		if daily.IsZero() {
			return nil
		}
		return &RowError{
			Row:     rec.Row,
			Field:   schema.ColDailyRate,
			Message: "daily rate set but hourly rate is zero",
		}
	}

	drift := daily.Sub(expected).Abs()
	if drift.LessThanOrEqual(expected.Mul(dailyRateTolerance)) {
		return nil
	}
	return &RowError{
		Row:     rec.Row,
		Field:   schema.ColDailyRate,
		Message: "daily rate " + daily.String() + " is more than 10% away from 8x hourly rate (" + expected.String() + ")",
	}
}
