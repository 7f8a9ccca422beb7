package access

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownCapability is returned when one or more API names are not
	// present in the requested section (or in any section).
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrAmbiguousCapability is returned when an API name exists in more
	// than one section and no section was given.
	ErrAmbiguousCapability = errors.New("ambiguous capability, section required")

	// ErrInvalidNameList is returned when API names are neither a
	// comma-separated string nor a string slice.
	ErrInvalidNameList = errors.New("invalid capability list type")

	// ErrInvalidMaskType is returned when a mask is neither an integer nor
	// a slice of integers.
	ErrInvalidMaskType = errors.New("invalid mask type")

	// ErrSectionRequired is returned by MaskToAPIs without a section.
	ErrSectionRequired = errors.New("section required")

	// ErrOverlappingMask is returned when two entries in one section share a bit.
	ErrOverlappingMask = errors.New("overlapping access mask")

	// ErrSectionMismatch is returned when a capability change names a
	// section other than the one matching the key's type.
	ErrSectionMismatch = errors.New("capability section does not match key type")

	// ErrKeyNotFound is returned by Lookup when the key does not exist and
	// creation was not requested.
	ErrKeyNotFound = errors.New("registered key not found")
)

// ResolutionError reports the API names that could not be resolved.
type ResolutionError struct {
	Kind    error // ErrUnknownCapability, ErrAmbiguousCapability or ErrSectionMismatch
	Names   []string
	Section string
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	b.WriteString(": ")
	b.WriteString(strings.Join(e.Names, ", "))
	if e.Section != "" {
		fmt.Fprintf(&b, " (section %s)", e.Section)
	}
	return b.String()
}

func (e *ResolutionError) Unwrap() error {
	return e.Kind
}

// IsPermissionError reports whether err came from capability resolution.
func IsPermissionError(err error) bool {
	return errors.Is(err, ErrUnknownCapability) ||
		errors.Is(err, ErrAmbiguousCapability) ||
		errors.Is(err, ErrInvalidNameList) ||
		errors.Is(err, ErrInvalidMaskType) ||
		errors.Is(err, ErrSectionRequired) ||
		errors.Is(err, ErrSectionMismatch)
}
