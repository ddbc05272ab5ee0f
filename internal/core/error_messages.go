package core

// error_messages.go maps internal errors to user-facing messages with
// support codes. Users quote the code; logs carry the technical detail.
//
//	IMP001 - header row does not match the selected template
//	IMP002 - fiscal year missing on a labour-rates import
//	IMP003 - another import is already running
//	IMP004 - unknown import kind
//	FILE001 - CSV syntax the parser could not recover from
//	CAP001 - commitment period end before start
//	CAP002 - hours per unit outside 0.5..24
//	CAP003 - resource not known to the ledger
//	REC001 - record not found
//	SYS001 - anything unclassified

import (
	"errors"

	"github.com/planops/capacity/internal/capacity"
	"github.com/planops/capacity/internal/ledger"
	"github.com/planops/capacity/internal/tabular"
)

// UserMessage is a user-facing rendering of an error.
type UserMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// MapError classifies an error into a UserMessage.
func MapError(err error) UserMessage {
	var headerMismatch *HeaderMismatchError
	if errors.As(err, &headerMismatch) {
		return UserMessage{
			Code:    "IMP001",
			Message: "The file's header row does not match the selected template.",
			Action:  "Download the template for this import kind and paste your data under its header.",
		}
	}

	if errors.Is(err, ErrFiscalYearRequired) {
		return UserMessage{
			Code:    "IMP002",
			Message: "Labour-rates imports need a fiscal year.",
			Action:  "Supply the fiscal_year parameter, e.g. FY25.",
		}
	}

	if errors.Is(err, ErrImportBusy) {
		return UserMessage{
			Code:    "IMP003",
			Message: "Another import is already running.",
			Action:  "Wait for it to finish and retry.",
		}
	}

	if errors.Is(err, ErrUnknownKind) {
		return UserMessage{
			Code:    "IMP004",
			Message: "That import kind is not supported.",
			Action:  "List the supported templates at /api/templates.",
		}
	}

	var malformed *tabular.MalformedRowError
	if errors.As(err, &malformed) {
		return UserMessage{
			Code:    "FILE001",
			Message: "The file is not valid CSV.",
			Action:  "Check for an unclosed quote near line " + itoa(malformed.Line) + " and re-export the file.",
		}
	}

	var invalidPeriod *capacity.InvalidPeriodError
	if errors.As(err, &invalidPeriod) {
		return UserMessage{
			Code:    "CAP001",
			Message: "The commitment period ends before it starts.",
			Action:  "Swap the start and end dates.",
		}
	}

	var invalidHours *capacity.InvalidHoursError
	if errors.As(err, &invalidHours) {
		return UserMessage{
			Code:    "CAP002",
			Message: "Hours per unit must be between 0.5 and 24.",
		}
	}

	var unknownResource *capacity.UnknownResourceError
	if errors.As(err, &unknownResource) {
		return UserMessage{
			Code:    "CAP003",
			Message: "That resource is not in the ledger.",
			Action:  "Import the resource master first.",
		}
	}

	if errors.Is(err, ledger.ErrNotFound) {
		return UserMessage{Code: "REC001", Message: "Record not found."}
	}

	return UserMessage{
		Code:    "SYS001",
		Message: "Something went wrong processing the request.",
		Action:  "Retry, and quote this code to support if it persists.",
	}
}

func itoa(i int) string {
	if i <= 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	return string(b[n:])
}
