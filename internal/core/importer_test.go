package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/planops/capacity/internal/capacity"
	"github.com/planops/capacity/internal/ledger"
	"github.com/planops/capacity/internal/schema"
	"github.com/planops/capacity/internal/tabular"
)

const resourcesHeader = "Roadmap_ResourceID,ResourceName,Email,WorkArea,ActivityType_CAP,ActivityType_OPX,Contract Type,EmployeeID"

func newTestImporter() (*Importer, *ledger.Memory) {
	mem := ledger.NewMemory()
	return NewImporter(mem, capacity.New(mem), nil), mem
}

func TestImport_Resources(t *testing.T) {
	im, mem := newTestImporter()

	csv := resourcesHeader + "\n" +
		"R1,Jane Smith,jane@example.com,Payments,N3_CAP,Nil,FTE,E100\n" +
		"R2,Bob Jones,,,N2_OPX,,External Squad,E101\n"

	result, err := im.Import(context.Background(), Request{Kind: schema.KindResources, CSVText: csv})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if result.Processed != 2 || result.Imported != 2 || result.Failed != 0 {
		t.Errorf("processed/imported/failed = %d/%d/%d, want 2/2/0",
			result.Processed, result.Imported, result.Failed)
	}
	if result.RunID == "" {
		t.Error("expected a run id")
	}
	if mem.ResourceCount() != 2 {
		t.Errorf("resource count = %d, want 2", mem.ResourceCount())
	}

	r, err := mem.FindResourceByName(context.Background(), "Jane Smith")
	if err != nil {
		t.Fatalf("FindResourceByName() error = %v", err)
	}
	if r.EmployeeID != "E100" || r.ContractType != schema.ContractFTE {
		t.Errorf("stored resource = %+v", r)
	}
}

func TestImport_ProcessedEqualsImportedPlusFailed(t *testing.T) {
	im, _ := newTestImporter()

	csv := resourcesHeader + "\n" +
		"R1,Jane Smith,,,,,FTE,E100\n" +
		"R2,,,,,,SOW,E101\n" + // missing name
		"R3,Bob Jones,,,,,Contractor,E102\n" // bad contract type

	result, err := im.Import(context.Background(), Request{Kind: schema.KindResources, CSVText: csv})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if result.Processed != result.Imported+result.Failed {
		t.Errorf("processed %d != imported %d + failed %d",
			result.Processed, result.Imported, result.Failed)
	}
	if result.Imported != 1 || result.Failed != 2 {
		t.Errorf("imported/failed = %d/%d, want 1/2", result.Imported, result.Failed)
	}
}

func TestImport_BadContractTypeNamesAcceptedValues(t *testing.T) {
	im, mem := newTestImporter()

	csv := resourcesHeader + "\n" +
		"R1,Jane Smith,,,,,FTE,E100\n" +
		"R2,Bob Jones,,,,,Contractor,E101\n"

	result, err := im.Import(context.Background(), Request{Kind: schema.KindResources, CSVText: csv})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	// The bad row is rejected; the good one still imports.
	if result.Imported != 1 || result.Failed != 1 {
		t.Fatalf("imported/failed = %d/%d, want 1/1", result.Imported, result.Failed)
	}
	if mem.ResourceCount() != 1 {
		t.Errorf("resource count = %d, want 1", mem.ResourceCount())
	}

	if len(result.Errors) != 1 {
		t.Fatalf("errors = %v", result.Errors)
	}
	e := result.Errors[0]
	if e.Row != 2 || e.Field != schema.ColContractType {
		t.Errorf("error location = row %d field %q", e.Row, e.Field)
	}
	for _, accepted := range []string{"FTE", "SOW", "External Squad"} {
		if !strings.Contains(e.Message, accepted) {
			t.Errorf("message %q does not name accepted value %q", e.Message, accepted)
		}
	}
}

func TestImport_HeaderMismatchAborts(t *testing.T) {
	im, mem := newTestImporter()

	csv := "Name,Contract\nJane Smith,FTE\n"

	_, err := im.Import(context.Background(), Request{Kind: schema.KindResources, CSVText: csv})
	var mismatch *HeaderMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Import() error = %v, want HeaderMismatchError", err)
	}
	if mem.ResourceCount() != 0 {
		t.Errorf("resource count = %d, want 0 after aborted import", mem.ResourceCount())
	}
	if !strings.Contains(mismatch.Error(), "0 records") {
		t.Errorf("error %q should explain the zero-record outcome", mismatch.Error())
	}
}

func TestImport_EmptyFileIsHeaderMismatch(t *testing.T) {
	im, _ := newTestImporter()

	_, err := im.Import(context.Background(), Request{Kind: schema.KindResources, CSVText: ""})
	var mismatch *HeaderMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Import() error = %v, want HeaderMismatchError", err)
	}
}

func TestImport_FiscalYearRequired(t *testing.T) {
	im, _ := newTestImporter()

	_, err := im.Import(context.Background(), Request{Kind: schema.KindLabourRates, CSVText: "x"})
	if !errors.Is(err, ErrFiscalYearRequired) {
		t.Errorf("Import() error = %v, want ErrFiscalYearRequired", err)
	}
}

func TestImport_UnknownKind(t *testing.T) {
	im, _ := newTestImporter()

	_, err := im.Import(context.Background(), Request{Kind: "payroll", CSVText: "x"})
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Import() error = %v, want ErrUnknownKind", err)
	}
}

func TestImport_Idempotent(t *testing.T) {
	im, mem := newTestImporter()

	csv := resourcesHeader + "\n" +
		"R1,Jane Smith,jane@example.com,Payments,N3_CAP,Nil,FTE,E100\n"

	for i := 0; i < 2; i++ {
		result, err := im.Import(context.Background(), Request{Kind: schema.KindResources, CSVText: csv})
		if err != nil {
			t.Fatalf("run %d: Import() error = %v", i+1, err)
		}
		if result.Imported != 1 || result.Failed != 0 {
			t.Fatalf("run %d: imported/failed = %d/%d", i+1, result.Imported, result.Failed)
		}
	}

	if mem.ResourceCount() != 1 {
		t.Errorf("resource count after re-import = %d, want 1", mem.ResourceCount())
	}
}

func TestImport_LabourRates(t *testing.T) {
	im, mem := newTestImporter()

	csv := "Labour Rate Card,,,,,,\n" +
		"FY25,,,,,,\n" +
		"Band,,Activity Type,Hourly Rate,Daily Rate,$ Uplift,% Uplift\n" +
		"N3,Senior Engineer,CAP,$75.00,$600.00,,\n" +
		"N4,Lead Engineer,OPX,\"$1,000.00\",\"$8,000.00\",50,5\n"

	result, err := im.Import(context.Background(), Request{
		Kind:       schema.KindLabourRates,
		CSVText:    csv,
		FiscalYear: "FY25",
	})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if result.Imported != 2 || result.Failed != 0 {
		t.Fatalf("imported/failed = %d/%d: %v", result.Imported, result.Failed, result.Errors)
	}
	// 600 is exactly 8x75 and 8000 exactly 8x1000: no drift warnings.
	if len(result.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", result.Warnings)
	}
	if mem.RateCount() != 2 {
		t.Errorf("rate count = %d, want 2", mem.RateCount())
	}

	rates, err := mem.LabourRates(context.Background(), "FY25")
	if err != nil {
		t.Fatalf("LabourRates() error = %v", err)
	}
	if len(rates) != 2 {
		t.Fatalf("rates for FY25 = %d, want 2", len(rates))
	}
}

func TestImport_LabourRateDriftWarns(t *testing.T) {
	im, _ := newTestImporter()

	csv := "title,,,,,,\n" +
		"title,,,,,,\n" +
		"Band,,Activity Type,Hourly Rate,Daily Rate,$ Uplift,% Uplift\n" +
		"N3,,CAP,75,700,,\n"

	result, err := im.Import(context.Background(), Request{
		Kind:       schema.KindLabourRates,
		CSVText:    csv,
		FiscalYear: "FY25",
	})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	// The row still imports; the drift is advisory.
	if result.Imported != 1 {
		t.Fatalf("imported = %d, want 1: %v", result.Imported, result.Errors)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %v, want 1", result.Warnings)
	}
	if result.Warnings[0].Field != schema.ColDailyRate {
		t.Errorf("warning field = %q", result.Warnings[0].Field)
	}
}

func TestImport_DuplicateRowsInFile(t *testing.T) {
	im, mem := newTestImporter()

	csv := resourcesHeader + "\n" +
		"R1,Jane Smith,jane@example.com,,,,FTE,E100\n" +
		"R1,Jane Smith,other@example.com,,,,FTE,E100\n"

	result, err := im.Import(context.Background(), Request{Kind: schema.KindResources, CSVText: csv})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	// First row wins; the repeat is flagged, not silently merged.
	if result.Imported != 1 || result.Failed != 1 {
		t.Fatalf("imported/failed = %d/%d, want 1/1", result.Imported, result.Failed)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0].Message, "duplicate of row 1") {
		t.Errorf("errors = %v", result.Errors)
	}

	r, err := mem.FindResourceByName(context.Background(), "Jane Smith")
	if err != nil {
		t.Fatalf("FindResourceByName() error = %v", err)
	}
	if r.Email != "jane@example.com" {
		t.Errorf("email = %q, want first row's value", r.Email)
	}
}

func TestImport_Commitment(t *testing.T) {
	im, mem := newTestImporter()

	resources := resourcesHeader + "\n" +
		"R1,Jane Smith,,,,,FTE,E100\n"
	if _, err := im.Import(context.Background(), Request{Kind: schema.KindResources, CSVText: resources}); err != nil {
		t.Fatalf("resources import: %v", err)
	}

	commitments := "ResourceName,Period Start,Period End,Frequency,Hours Per Unit\n" +
		"Jane Smith,01-09-2025,07-09-2025,PerDay,6\n"

	result, err := im.Import(context.Background(), Request{Kind: schema.KindCommitment, CSVText: commitments})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.Imported != 1 || result.Failed != 0 {
		t.Fatalf("imported/failed = %d/%d: %v", result.Imported, result.Failed, result.Errors)
	}

	r, err := mem.FindResourceByName(context.Background(), "Jane Smith")
	if err != nil {
		t.Fatalf("FindResourceByName() error = %v", err)
	}
	if r.Snapshot == nil {
		t.Fatal("commitment import should leave a capacity snapshot")
	}
	// 7 days x 6 hours.
	if r.Snapshot.TotalAvailableHours.String() != "42" {
		t.Errorf("total available = %s, want 42", r.Snapshot.TotalAvailableHours)
	}
}

func TestImport_CommitmentUnknownResource(t *testing.T) {
	im, _ := newTestImporter()

	csv := "ResourceName,Period Start,Period End,Frequency,Hours Per Unit\n" +
		"Nobody Here,01-09-2025,07-09-2025,PerDay,6\n"

	result, err := im.Import(context.Background(), Request{Kind: schema.KindCommitment, CSVText: csv})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if result.Failed != 1 || result.Imported != 0 {
		t.Fatalf("imported/failed = %d/%d, want 0/1", result.Imported, result.Failed)
	}
	if !strings.Contains(result.Errors[0].Message, "Nobody Here") {
		t.Errorf("error %q should name the missing resource", result.Errors[0].Message)
	}
}

func TestImport_ConfigRowsKeepPosition(t *testing.T) {
	im, mem := newTestImporter()

	csv := "Picklist Export,,\n" +
		"Generated 01-08-2025,,\n" +
		"Config Type,Value,Description\n" +
		"Epic,Platform,\n" +
		"Epic,Payments,\n" +
		"Feature,Checkout,\n"

	result, err := im.Import(context.Background(), Request{Kind: schema.KindEpicFeatureConfig, CSVText: csv})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	// Repeated config types are row-keyed, never treated as duplicates.
	if result.Imported != 3 || result.Failed != 0 {
		t.Fatalf("imported/failed = %d/%d: %v", result.Imported, result.Failed, result.Errors)
	}

	runs, err := mem.ImportRuns(context.Background())
	if err != nil {
		t.Fatalf("ImportRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Imported != 3 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestImport_ErrorListCapped(t *testing.T) {
	im, _ := newTestImporter()

	var b strings.Builder
	b.WriteString(resourcesHeader + "\n")
	for i := 0; i < 15; i++ {
		b.WriteString("R,,,,,,FTE,\n") // every row missing its name
	}

	result, err := im.Import(context.Background(), Request{Kind: schema.KindResources, CSVText: b.String()})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if result.Failed != 15 {
		t.Errorf("failed = %d, want 15", result.Failed)
	}
	if len(result.Errors) != MaxReportedErrors {
		t.Errorf("reported errors = %d, want %d", len(result.Errors), MaxReportedErrors)
	}
}

func TestImport_BlankRowsNotCounted(t *testing.T) {
	im, _ := newTestImporter()

	csv := resourcesHeader + "\n" +
		"R1,Jane Smith,,,,,FTE,E100\n" +
		",,,,,,,\n" +
		"R2,Bob Jones,,,,,SOW,E101\n"

	result, err := im.Import(context.Background(), Request{Kind: schema.KindResources, CSVText: csv})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.Processed != 2 {
		t.Errorf("processed = %d, want 2 (blank row not counted)", result.Processed)
	}
	// Row numbers in errors must still refer to data rows, so Bob is row 2.
	if result.Imported != 2 {
		t.Errorf("imported = %d: %v", result.Imported, result.Errors)
	}
}

func TestImport_MalformedCSVAborts(t *testing.T) {
	im, mem := newTestImporter()

	csv := resourcesHeader + "\n" +
		"R1,\"Jane Smith,,,,,FTE,E100\n"

	_, err := im.Import(context.Background(), Request{Kind: schema.KindResources, CSVText: csv})
	var malformed *tabular.MalformedRowError
	if !errors.As(err, &malformed) {
		t.Fatalf("Import() error = %v, want MalformedRowError", err)
	}
	if mem.ResourceCount() != 0 {
		t.Errorf("resource count = %d, want 0", mem.ResourceCount())
	}
}

func TestImport_Cancelled(t *testing.T) {
	im, _ := newTestImporter()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	csv := resourcesHeader + "\n" + "R1,Jane Smith,,,,,FTE,E100\n"
	_, err := im.Import(ctx, Request{Kind: schema.KindResources, CSVText: csv})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Import() error = %v, want context.Canceled", err)
	}
}
