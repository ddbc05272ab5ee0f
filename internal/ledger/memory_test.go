package ledger

import (
	"context"
	"testing"

	"github.com/planops/capacity/internal/schema"
	"github.com/shopspring/decimal"
)

func TestMemory_UpsertResource_InsertThenUpdate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	outcome, err := m.UpsertResource(ctx, Resource{
		Name:         "Jane Smith",
		ContractType: schema.ContractFTE,
		EmployeeID:   "E100",
	})
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if outcome != Inserted {
		t.Errorf("expected Inserted, got %s", outcome)
	}

	outcome, err = m.UpsertResource(ctx, Resource{
		Name:         "Jane Smith",
		ContractType: schema.ContractSOW,
		EmployeeID:   "E100",
		Email:        "jane@example.com",
	})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if outcome != Updated {
		t.Errorf("expected Updated, got %s", outcome)
	}
	if m.ResourceCount() != 1 {
		t.Errorf("expected 1 resource, got %d", m.ResourceCount())
	}

	stored, err := m.FindResourceByName(ctx, "Jane Smith")
	if err != nil {
		t.Fatalf("FindResourceByName failed: %v", err)
	}
	if stored.ContractType != schema.ContractSOW {
		t.Errorf("contract type not overwritten: %s", stored.ContractType)
	}
	if stored.Email != "jane@example.com" {
		t.Errorf("email not set: %q", stored.Email)
	}
}

func TestMemory_UpsertResource_AbsentOptionalsPreserved(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.UpsertResource(ctx, Resource{
		Name:         "Jane Smith",
		ContractType: schema.ContractFTE,
		EmployeeID:   "E100",
		Email:        "jane@example.com",
		WorkArea:     "Payments",
	}); err != nil {
		t.Fatalf("seed upsert failed: %v", err)
	}

	// Re-import with the optional columns blank.
	if _, err := m.UpsertResource(ctx, Resource{
		Name:         "Jane Smith",
		ContractType: schema.ContractFTE,
		EmployeeID:   "E100",
	}); err != nil {
		t.Fatalf("re-import upsert failed: %v", err)
	}

	stored, err := m.FindResourceByName(ctx, "Jane Smith")
	if err != nil {
		t.Fatalf("FindResourceByName failed: %v", err)
	}
	if stored.Email != "jane@example.com" {
		t.Errorf("blank email nulled stored value: %q", stored.Email)
	}
	if stored.WorkArea != "Payments" {
		t.Errorf("blank work area nulled stored value: %q", stored.WorkArea)
	}
}

func TestMemory_UpsertResource_NameFallbackThenEmployeeID(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	// First import has no EmployeeID, keyed by name.
	if _, err := m.UpsertResource(ctx, Resource{Name: "Sam Lee", ContractType: schema.ContractFTE}); err != nil {
		t.Fatalf("seed upsert failed: %v", err)
	}

	// Later import carries the employee id; must match the same record.
	outcome, err := m.UpsertResource(ctx, Resource{Name: "Sam Lee", ContractType: schema.ContractFTE, EmployeeID: "E200"})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if outcome != Updated {
		t.Errorf("expected Updated, got %s", outcome)
	}
	if m.ResourceCount() != 1 {
		t.Errorf("expected 1 resource, got %d", m.ResourceCount())
	}
}

func TestMemory_UpsertLabourRate_Idempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	rate := LabourRate{
		Band:         schema.BandN3,
		ActivityType: schema.ActivityCAP,
		HourlyRate:   decimal.RequireFromString("75"),
		DailyRate:    decimal.RequireFromString("600"),
		FiscalYear:   "FY25",
	}

	if _, err := m.UpsertLabourRate(ctx, rate); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	outcome, err := m.UpsertLabourRate(ctx, rate)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if outcome != Updated {
		t.Errorf("expected Updated on repeat, got %s", outcome)
	}
	if m.RateCount() != 1 {
		t.Errorf("repeat upsert duplicated record: %d rates", m.RateCount())
	}
}

func TestMemory_LabourRates_FiscalYearScoped(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, fy := range []string{"FY24", "FY25"} {
		if _, err := m.UpsertLabourRate(ctx, LabourRate{
			Band:         schema.BandN1,
			ActivityType: schema.ActivityOPX,
			HourlyRate:   decimal.NewFromInt(50),
			DailyRate:    decimal.NewFromInt(400),
			FiscalYear:   fy,
		}); err != nil {
			t.Fatalf("upsert %s failed: %v", fy, err)
		}
	}

	rates, err := m.LabourRates(ctx, "FY25")
	if err != nil {
		t.Fatalf("LabourRates failed: %v", err)
	}
	if len(rates) != 1 || rates[0].FiscalYear != "FY25" {
		t.Errorf("fiscal year filter wrong: %v", rates)
	}
}

func TestMemory_SaveSnapshot_UnknownResource(t *testing.T) {
	m := NewMemory()

	err := m.SaveSnapshot(context.Background(), CapacitySnapshot{ResourceID: "missing"})
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_AddAllocation_RequiresResource(t *testing.T) {
	m := NewMemory()

	err := m.AddAllocation(context.Background(), Allocation{ResourceID: "missing", Hours: decimal.NewFromInt(8)})
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
