// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flowline-ci/flowline/lib/schema"
)

// Expr is a node in the guard expression tree. Evaluation is pure:
// Eval reads the context and returns a boolean, never mutating either.
type Expr interface {
	// Eval evaluates the node against the context.
	Eval(ctx *Context) (bool, error)

	// String renders the node back to guard syntax, used by
	// `flowline graph` and error messages.
	String() string
}

// Context is the evaluation input: the triggering event, the evaluated
// job's dependency list, and the terminal results of all jobs that
// have finished. The engine guarantees every dependency is terminal
// before evaluating a guard; a missing entry is a scheduler bug
// surfaced as UnresolvedError.
type Context struct {
	// Event is the immutable trigger context.
	Event schema.Event

	// DependsOn lists the evaluated job's dependencies by ID.
	DependsOn []string

	// Results maps job ID to terminal result for all finished jobs.
	Results map[string]schema.RunResult
}

// UnresolvedError reports a guard referencing a dependency that has no
// terminal result. Per the scheduling contract this cannot happen in a
// correct engine, so callers treat it as fatal rather than as a false
// guard.
type UnresolvedError struct {
	JobID string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("guard references job %q which has not reached terminal status", e.JobID)
}

// dependencyStatus returns the terminal status of the given dependency
// or an UnresolvedError.
func (c *Context) dependencyStatus(jobID string) (schema.Status, error) {
	result, ok := c.Results[jobID]
	if !ok {
		return "", &UnresolvedError{JobID: jobID}
	}
	if !result.Status.Terminal() {
		return "", &UnresolvedError{JobID: jobID}
	}
	return result.Status, nil
}

// Field identifies an event attribute usable in comparisons.
type Field string

const (
	FieldEventType   Field = "event.type"
	FieldEventBranch Field = "event.branch"
	FieldEventSHA    Field = "event.sha"
	FieldEventPR     Field = "event.pr"
)

// fieldValue extracts the field's value from the event as a string.
// event.pr renders as the decimal PR number ("0" for pushes).
func fieldValue(field Field, event schema.Event) (string, error) {
	switch field {
	case FieldEventType:
		return string(event.Type), nil
	case FieldEventBranch:
		return event.Branch, nil
	case FieldEventSHA:
		return event.SHA, nil
	case FieldEventPR:
		return strconv.Itoa(event.PRNumber), nil
	default:
		return "", fmt.Errorf("unknown field %q", field)
	}
}

// Compare is an equality or inequality test between an event field and
// a literal value.
type Compare struct {
	Field  Field
	Negate bool // true for !=
	Value  string
}

func (e *Compare) Eval(ctx *Context) (bool, error) {
	value, err := fieldValue(e.Field, ctx.Event)
	if err != nil {
		return false, err
	}
	if e.Negate {
		return value != e.Value, nil
	}
	return value == e.Value, nil
}

func (e *Compare) String() string {
	op := "=="
	if e.Negate {
		op = "!="
	}
	return fmt.Sprintf("%s %s %q", e.Field, op, e.Value)
}

// Membership tests whether an event field's value is one of a literal
// set.
type Membership struct {
	Field  Field
	Values []string
}

func (e *Membership) Eval(ctx *Context) (bool, error) {
	value, err := fieldValue(e.Field, ctx.Event)
	if err != nil {
		return false, err
	}
	for _, candidate := range e.Values {
		if value == candidate {
			return true, nil
		}
	}
	return false, nil
}

func (e *Membership) String() string {
	quoted := make([]string, len(e.Values))
	for i, v := range e.Values {
		quoted[i] = strconv.Quote(v)
	}
	return fmt.Sprintf("%s in [%s]", e.Field, strings.Join(quoted, ", "))
}

// OutcomeKind selects which dependency-outcome predicate an Outcome
// node evaluates.
type OutcomeKind string

const (
	// OutcomeSuccess is true when every dependency succeeded.
	OutcomeSuccess OutcomeKind = "success"

	// OutcomeFailure is true when at least one dependency failed.
	OutcomeFailure OutcomeKind = "failure"

	// OutcomeAlways is unconditionally true. The scheduler has
	// already waited for dependencies to reach terminal status, so
	// "attempted" is implied; the predicate still resolves each
	// dependency to surface scheduler bugs.
	OutcomeAlways OutcomeKind = "always"

	// OutcomeCancelled is true when at least one dependency was
	// cancelled.
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is a dependency-outcome predicate: success(), failure(),
// always(), or cancelled().
type Outcome struct {
	Kind OutcomeKind
}

func (e *Outcome) Eval(ctx *Context) (bool, error) {
	// Resolve every dependency first. Even always() insists on
	// terminal dependencies: an unresolved reference is a scheduler
	// bug regardless of which predicate observed it.
	statuses := make([]schema.Status, 0, len(ctx.DependsOn))
	for _, jobID := range ctx.DependsOn {
		status, err := ctx.dependencyStatus(jobID)
		if err != nil {
			return false, err
		}
		statuses = append(statuses, status)
	}

	switch e.Kind {
	case OutcomeAlways:
		return true, nil
	case OutcomeSuccess:
		for _, status := range statuses {
			if status != schema.StatusSuccess {
				return false, nil
			}
		}
		return true, nil
	case OutcomeFailure:
		for _, status := range statuses {
			if status == schema.StatusFailure {
				return true, nil
			}
		}
		return false, nil
	case OutcomeCancelled:
		for _, status := range statuses {
			if status == schema.StatusCancelled {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown outcome predicate %q", e.Kind)
	}
}

func (e *Outcome) String() string { return string(e.Kind) + "()" }

// UsesOutcome reports whether the expression consults dependency
// outcomes anywhere in its tree. A guard without an outcome predicate
// only narrows when a job runs; it does not decide what to do about
// failed dependencies, so the scheduler conjoins success() onto it.
func UsesOutcome(expr Expr) bool {
	switch e := expr.(type) {
	case *Outcome:
		return true
	case *And:
		return UsesOutcome(e.Left) || UsesOutcome(e.Right)
	case *Or:
		return UsesOutcome(e.Left) || UsesOutcome(e.Right)
	case *Not:
		return UsesOutcome(e.Inner)
	default:
		return false
	}
}

// And is short-circuiting conjunction.
type And struct {
	Left, Right Expr
}

func (e *And) Eval(ctx *Context) (bool, error) {
	left, err := e.Left.Eval(ctx)
	if err != nil {
		return false, err
	}
	if !left {
		return false, nil
	}
	return e.Right.Eval(ctx)
}

func (e *And) String() string {
	return fmt.Sprintf("(%s && %s)", e.Left, e.Right)
}

// Or is short-circuiting disjunction.
type Or struct {
	Left, Right Expr
}

func (e *Or) Eval(ctx *Context) (bool, error) {
	left, err := e.Left.Eval(ctx)
	if err != nil {
		return false, err
	}
	if left {
		return true, nil
	}
	return e.Right.Eval(ctx)
}

func (e *Or) String() string {
	return fmt.Sprintf("(%s || %s)", e.Left, e.Right)
}

// Not is logical negation.
type Not struct {
	Inner Expr
}

func (e *Not) Eval(ctx *Context) (bool, error) {
	inner, err := e.Inner.Eval(ctx)
	if err != nil {
		return false, err
	}
	return !inner, nil
}

func (e *Not) String() string { return "!" + e.Inner.String() }

// Literal is a constant boolean. The bare words "true" and "false"
// parse to literals. (Bare "always" parses to the always() predicate,
// not a literal, so it keeps the predicate's terminal-dependency
// check.)
type Literal struct {
	Value bool
}

func (e *Literal) Eval(ctx *Context) (bool, error) { return e.Value, nil }

func (e *Literal) String() string { return strconv.FormatBool(e.Value) }
