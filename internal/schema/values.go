package schema

import (
	"fmt"
	"strings"
)

// Band is a labour seniority tier: N1 (most junior) through N6, or External
// for contracted-out work.
type Band string

const (
	BandN1       Band = "N1"
	BandN2       Band = "N2"
	BandN3       Band = "N3"
	BandN4       Band = "N4"
	BandN5       Band = "N5"
	BandN6       Band = "N6"
	BandExternal Band = "External"
)

// Bands lists all accepted band values, in seniority order.
var Bands = []string{"N1", "N2", "N3", "N4", "N5", "N6", "External"}

// ActivityKind is the cost classification of work: capital or operating expense.
type ActivityKind string

const (
	ActivityCAP ActivityKind = "CAP"
	ActivityOPX ActivityKind = "OPX"
)

// ActivityKinds lists all accepted activity classifications.
var ActivityKinds = []string{"CAP", "OPX"}

// ContractType is the employment relationship of a resource.
type ContractType string

const (
	ContractFTE           ContractType = "FTE"
	ContractSOW           ContractType = "SOW"
	ContractExternalSquad ContractType = "External Squad"
)

// ContractTypes lists all accepted contract types.
var ContractTypes = []string{"FTE", "SOW", "External Squad"}

// Frequency is how often a commitment's hours-per-unit applies over a period.
type Frequency string

const (
	PerDay       Frequency = "PerDay"
	PerWeek      Frequency = "PerWeek"
	PerFortnight Frequency = "PerFortnight"
)

// Frequencies lists all accepted commitment frequencies.
var Frequencies = []string{"PerDay", "PerWeek", "PerFortnight"}

// BandActivity pairs a band with an activity classification, written in CSV
// cells as N{1-6}_{CAP|OPX} (e.g. "N3_CAP"). A nil *BandActivity is the
// "not applicable" sentinel, spelled "Nil" or left blank in source files.
type BandActivity struct {
	Band Band
	Kind ActivityKind
}

func (b BandActivity) String() string {
	return fmt.Sprintf("%s_%s", b.Band, b.Kind)
}

// ParseBandActivity parses a band/activity cell. Blank and "Nil" map to the
// not-applicable sentinel (nil, nil). Matching is case-sensitive.
func ParseBandActivity(raw string) (*BandActivity, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "Nil" {
		return nil, nil
	}

	band, kind, found := strings.Cut(s, "_")
	if !found {
		return nil, fmt.Errorf("must be N{1-6}_{CAP|OPX} or Nil, got %q", raw)
	}

	// External band carries no numbered activity pairing.
	validBand := false
	for _, b := range []Band{BandN1, BandN2, BandN3, BandN4, BandN5, BandN6} {
		if Band(band) == b {
			validBand = true
			break
		}
	}
	if !validBand {
		return nil, fmt.Errorf("must be N{1-6}_{CAP|OPX} or Nil, got %q", raw)
	}

	switch ActivityKind(kind) {
	case ActivityCAP, ActivityOPX:
		return &BandActivity{Band: Band(band), Kind: ActivityKind(kind)}, nil
	default:
		return nil, fmt.Errorf("must be N{1-6}_{CAP|OPX} or Nil, got %q", raw)
	}
}
