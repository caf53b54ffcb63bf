// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package vartype

import (
	"fmt"
)

type (
	// VarString is a type alias for Variable[string], representing an optional string such as an
	// address component that a geocoder may or may not return.
	VarString = Variable[string]

	// VarFloat64 is a type alias for Variable[float64], representing a float64 value with initialization tracking.
	VarFloat64 = Variable[float64]
)

// Variable represents a generic type wrapper that holds a value and tracks its initialization state.
type Variable[T any] struct {
	value T
	isset bool
}

// NewVariable creates and returns a new Variable instance initialized with the provided value.
func NewVariable[T any](value T) Variable[T] {
	return Variable[T]{
		isset: true,
		value: value,
	}
}

// Optional returns a Variable that is only marked as set if value is not the zero value of T.
// APIs that report missing components as empty strings map cleanly onto this.
func Optional[T comparable](value T) Variable[T] {
	var zero T
	if value == zero {
		return Variable[T]{}
	}
	return NewVariable(value)
}

// Reset clears the value of the Variable and marks it as uninitialized.
func (v *Variable[T]) Reset() {
	var newVal T
	v.value = newVal
	v.isset = false
}

// Value retrieves the current value stored in the Variable.
func (v Variable[T]) Value() T {
	return v.value
}

// Get returns the stored value and whether it was set.
func (v Variable[T]) Get() (T, bool) {
	return v.value, v.isset
}

// Set assigns the provided value to the Variable and marks it as initialized.
func (v *Variable[T]) Set(val T) {
	v.value = val
	v.isset = true
}

// IsSet returns true if the Variable has been initialized with a value, otherwise false.
func (v Variable[T]) IsSet() bool {
	return v.isset
}

// String returns a string representation of the Variable. An unset Variable renders as an
// empty string so templates can print it unconditionally.
func (v Variable[T]) String() string {
	if !v.isset {
		return ""
	}
	return fmt.Sprint(v.value)
}
