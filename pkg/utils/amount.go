package utils

import (
	"strings"

	"custody-service/internal/xerrors"
)

// ValidateAmount checks that s is a positive decimal string such as "100" or
// "100.25". Amounts stay strings end to end; nothing in the pipeline ever
// parses them into binary floating point.
func ValidateAmount(s string) error {
	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if !allDigits(intPart) || intPart == "" {
		return xerrors.ErrInvalidAmount
	}
	if hasDot && (!allDigits(fracPart) || fracPart == "") {
		return xerrors.ErrInvalidAmount
	}
	if isZero(intPart) && (!hasDot || isZero(fracPart)) {
		return xerrors.ErrInvalidAmount
	}
	return nil
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isZero(s string) bool {
	return strings.Trim(s, "0") == ""
}
