package schema

import "github.com/shopspring/decimal"

// Column names shared between descriptors and the record builders in
// internal/core. CSV header cells match these except where noted.
const (
	ColBand          = "Band"
	ColDescription   = "Description" // header cell is blank in the rate template
	ColActivityType  = "Activity Type"
	ColHourlyRate    = "Hourly Rate"
	ColDailyRate     = "Daily Rate"
	ColDollarUplift  = "$ Uplift"
	ColPercentUplift = "% Uplift"

	ColResourceID      = "Roadmap_ResourceID"
	ColResourceName    = "ResourceName"
	ColEmail           = "Email"
	ColWorkArea        = "WorkArea"
	ColActivityTypeCap = "ActivityType_CAP"
	ColActivityTypeOpx = "ActivityType_OPX"
	ColContractType    = "Contract Type"
	ColEmployeeID      = "EmployeeID"

	ColPeriodStart  = "Period Start"
	ColPeriodEnd    = "Period End"
	ColFrequency    = "Frequency"
	ColHoursPerUnit = "Hours Per Unit"

	ColConfigType  = "Config Type"
	ColConfigValue = "Value"
)

var (
	minHoursPerUnit = decimal.RequireFromString("0.5")
	maxHoursPerUnit = decimal.NewFromInt(24)
)

func init() {
	Register(labourRatesTemplate())
	Register(resourcesTemplate())
	Register(commitmentTemplate())
	Register(epicFeatureConfigTemplate())
}

// labourRatesTemplate describes the finance-issued rate card export: two
// title rows (report name and fiscal-year banner), then a header whose second
// cell is blank (the unnamed description column).
func labourRatesTemplate() *TemplateDescriptor {
	return &TemplateDescriptor{
		Kind:      KindLabourRates,
		Label:     "Labour Rates",
		TitleRows: 2,
		Header:    []string{"Band", "", "Activity Type", "Hourly Rate", "Daily Rate", "$ Uplift", "% Uplift"},
		Columns: []ColumnSpec{
			{Name: ColBand, Type: CellEnum, Required: true, EnumValues: Bands},
			{Name: ColDescription, Type: CellText},
			{Name: ColActivityType, Type: CellEnum, Required: true, EnumValues: ActivityKinds},
			{Name: ColHourlyRate, Type: CellDecimal, Required: true, NonNegative: true},
			{Name: ColDailyRate, Type: CellDecimal, Required: true, NonNegative: true},
			{Name: ColDollarUplift, Type: CellDecimal},
			{Name: ColPercentUplift, Type: CellDecimal},
		},
		NaturalKey:         []string{ColBand, ColActivityType},
		RequiresFiscalYear: true,
	}
}

// resourcesTemplate describes the resource master export. EmployeeID is the
// preferred upsert key; rows without one fall back to ResourceName.
func resourcesTemplate() *TemplateDescriptor {
	return &TemplateDescriptor{
		Kind:      KindResources,
		Label:     "Resources",
		TitleRows: 0,
		Header: []string{
			"Roadmap_ResourceID", "ResourceName", "Email", "WorkArea",
			"ActivityType_CAP", "ActivityType_OPX", "Contract Type", "EmployeeID",
		},
		Columns: []ColumnSpec{
			{Name: ColResourceID, Type: CellText},
			{Name: ColResourceName, Type: CellText, Required: true},
			{Name: ColEmail, Type: CellText},
			{Name: ColWorkArea, Type: CellText},
			{Name: ColActivityTypeCap, Type: CellBandActivity},
			{Name: ColActivityTypeOpx, Type: CellBandActivity},
			{Name: ColContractType, Type: CellEnum, Required: true, EnumValues: ContractTypes},
			{Name: ColEmployeeID, Type: CellText},
		},
		NaturalKey: []string{ColEmployeeID, ColResourceName},
	}
}

// commitmentTemplate describes bulk commitment declarations. The hours range
// mirrors the capacity engine's own bounds so bad rows fail at validation
// instead of after persistence.
func commitmentTemplate() *TemplateDescriptor {
	return &TemplateDescriptor{
		Kind:      KindCommitment,
		Label:     "Commitments",
		TitleRows: 0,
		Header:    []string{"ResourceName", "Period Start", "Period End", "Frequency", "Hours Per Unit"},
		Columns: []ColumnSpec{
			{Name: ColResourceName, Type: CellText, Required: true},
			{Name: ColPeriodStart, Type: CellDate, Required: true},
			{Name: ColPeriodEnd, Type: CellDate, Required: true},
			{Name: ColFrequency, Type: CellEnum, Required: true, EnumValues: Frequencies},
			{Name: ColHoursPerUnit, Type: CellDecimal, Required: true, Min: &minHoursPerUnit, Max: &maxHoursPerUnit},
		},
		NaturalKey: []string{ColResourceName, ColPeriodStart},
	}
}

// epicFeatureConfigTemplate describes the epic/feature picklist export: two
// title rows, then ordered config values whose position matters.
func epicFeatureConfigTemplate() *TemplateDescriptor {
	return &TemplateDescriptor{
		Kind:      KindEpicFeatureConfig,
		Label:     "Epic/Feature Config",
		TitleRows: 2,
		Header:    []string{"Config Type", "Value", "Description"},
		Columns: []ColumnSpec{
			{Name: ColConfigType, Type: CellEnum, Required: true, EnumValues: []string{"Epic", "Feature"}},
			{Name: ColConfigValue, Type: CellText, Required: true},
			{Name: ColDescription, Type: CellText},
		},
		NaturalKey:  []string{ColConfigType},
		RowOrderKey: true,
	}
}
