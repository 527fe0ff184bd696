// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rlcore

import "fmt"

// RequiredError reports a mandatory argument or config entry that was
// not supplied.
type RequiredError struct {
	Name     string // component reporting the error, e.g. "Model.Save"
	Argument string // missing argument, e.g. "saver[directory]"
}

func (e *RequiredError) Error() string {
	return fmt.Sprintf("%s: required argument %s is missing", e.Name, e.Argument)
}

// Required returns a new RequiredError.
func Required(name, argument string) error {
	return &RequiredError{Name: name, Argument: argument}
}

// ValueError reports a value outside its valid domain, such as an
// unrecognized format string or min >= max bounds.
type ValueError struct {
	Name     string
	Argument string
	Value    interface{}
	Hint     string // optional, e.g. "not from {timesteps,episodes,updates}"
}

func (e *ValueError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: invalid value %v for %s (%s)", e.Name, e.Value, e.Argument, e.Hint)
	}
	return fmt.Sprintf("%s: invalid value %v for %s", e.Name, e.Value, e.Argument)
}

// Value returns a new ValueError.
func Value(name, argument string, value interface{}, hint string) error {
	return &ValueError{Name: name, Argument: argument, Value: value, Hint: hint}
}

// ExistsError reports a name collision within a namespace that
// requires unique names.
type ExistsError struct {
	Name  string // namespace, e.g. "value name"
	Value string // colliding name
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Name, e.Value)
}

// Exists returns a new ExistsError.
func Exists(name, value string) error {
	return &ExistsError{Name: name, Value: value}
}

// AssertionError reports a violated runtime invariant: malformed
// terminal batches, out-of-spec inputs, an invalid action choice, an
// all-false action mask.  These indicate caller or algorithm bugs, not
// transient conditions, and must never be retried.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	return e.Message
}

// Assertf returns a new AssertionError with a formatted message.
func Assertf(format string, args ...interface{}) error {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}
