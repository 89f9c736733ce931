// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

// Package condition implements guard expressions: boolean predicates
// over the triggering event and upstream job outcomes that gate job
// execution.
//
// Expressions are parsed once at pipeline load time into a small typed
// tree (field comparisons, outcome predicates, boolean combinators) and
// evaluated by a pure interpreter. There is no runtime string
// execution: a guard that fails to parse is a load-time error, and
// evaluation has no side effects.
//
// Grammar:
//
//	expr     := or
//	or       := and ( "||" and )*
//	and      := unary ( "&&" unary )*
//	unary    := "!" unary | primary
//	primary  := "(" expr ")"
//	          | "success" "(" ")" | "failure" "(" ")"
//	          | "always" "(" ")"  | "cancelled" "(" ")"
//	          | field ( "==" | "!=" ) value
//	          | field "in" "[" value ( "," value )* "]"
//	          | "true" | "false" | "always"
//	field    := "event.type" | "event.branch" | "event.sha" | "event.pr"
//	value    := single- or double-quoted string, or a bare word
//
// The outcome predicates follow the usual CI semantics: success() is
// true when every dependency succeeded, failure() when at least one
// dependency failed, always() ignores dependency outcomes entirely
// (the scheduler still waits for dependencies to reach terminal
// status), and cancelled() when at least one dependency was cancelled.
//
// Referencing a dependency that has not reached terminal status is not
// a runtime false: it returns [UnresolvedError], which the engine
// treats as fatal because it indicates a scheduler bug.
package condition
