// Package validation provides the layout checks run before a join starts.
// Each validator reports a violated precondition as a JoinError matching
// errors.ErrPrecondition, naming the offending setting.
package validation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/paveg/joinbench/internal/errors"
	"github.com/paveg/joinbench/internal/hashing"
)

// Validator interface for input validation
type Validator interface {
	Validate() error
}

// PositiveValidator validates that a setting is greater than zero
type PositiveValidator struct {
	field string
	value int
	op    string
}

// NewPositiveValidator creates a validator for positive settings
func NewPositiveValidator(field string, value int, op string) *PositiveValidator {
	return &PositiveValidator{field: field, value: value, op: op}
}

// Validate checks that the value is positive
func (v *PositiveValidator) Validate() error {
	if v.value <= 0 {
		return errors.NewPreconditionError(v.op, v.field,
			fmt.Sprintf("must be positive, got %d", v.value))
	}
	return nil
}

// PowerOfTwoValidator validates that a setting is a power of two
type PowerOfTwoValidator struct {
	field string
	value int
	op    string
}

// NewPowerOfTwoValidator creates a validator for bitmask-indexed sizes
func NewPowerOfTwoValidator(field string, value int, op string) *PowerOfTwoValidator {
	return &PowerOfTwoValidator{field: field, value: value, op: op}
}

// Validate checks that the value is a power of two
func (v *PowerOfTwoValidator) Validate() error {
	if !hashing.IsPowerOfTwo(v.value) {
		return errors.NewPreconditionError(v.op, v.field,
			fmt.Sprintf("must be a power of two, got %d", v.value))
	}
	return nil
}

// DivisibleValidator validates that one setting divides evenly by another
type DivisibleValidator struct {
	field, byField string
	value, by      int
	op             string
}

// NewDivisibleValidator creates a validator requiring value % by == 0
func NewDivisibleValidator(field string, value int, byField string, by int, op string) *DivisibleValidator {
	return &DivisibleValidator{field: field, value: value, byField: byField, by: by, op: op}
}

// Validate checks the divisibility
func (v *DivisibleValidator) Validate() error {
	if v.by <= 0 || v.value%v.by != 0 {
		return errors.NewPreconditionError(v.op, v.field,
			fmt.Sprintf("%d must be a multiple of %s (%d)", v.value, v.byField, v.by))
	}
	return nil
}

// OneOfValidator validates that a setting takes one of a fixed set of values
type OneOfValidator struct {
	field   string
	value   string
	allowed []string
	op      string
}

// NewOneOfValidator creates a validator for enumerated settings
func NewOneOfValidator(field, value string, op string, allowed ...string) *OneOfValidator {
	return &OneOfValidator{field: field, value: value, allowed: allowed, op: op}
}

// Validate checks membership
func (v *OneOfValidator) Validate() error {
	if !slices.Contains(v.allowed, v.value) {
		return errors.NewPreconditionError(v.op, v.field,
			fmt.Sprintf("%q is not one of %s", v.value, strings.Join(v.allowed, ", ")))
	}
	return nil
}

// CompoundValidator combines multiple validators
type CompoundValidator struct {
	validators []Validator
}

// NewCompoundValidator creates a validator that checks multiple conditions
func NewCompoundValidator(validators ...Validator) *CompoundValidator {
	return &CompoundValidator{
		validators: validators,
	}
}

// Add appends validators.
func (v *CompoundValidator) Add(validators ...Validator) *CompoundValidator {
	v.validators = append(v.validators, validators...)
	return v
}

// Validate runs all validators and returns the first error encountered
func (v *CompoundValidator) Validate() error {
	for _, validator := range v.validators {
		if err := validator.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Convenience validation functions

// ValidatePositive is a convenience function for positive validation
func ValidatePositive(field string, value int, op string) error {
	return NewPositiveValidator(field, value, op).Validate()
}

// ValidatePowerOfTwo is a convenience function for power-of-two validation
func ValidatePowerOfTwo(field string, value int, op string) error {
	return NewPowerOfTwoValidator(field, value, op).Validate()
}

// ValidateDivisible is a convenience function for divisibility validation
func ValidateDivisible(field string, value int, byField string, by int, op string) error {
	return NewDivisibleValidator(field, value, byField, by, op).Validate()
}
