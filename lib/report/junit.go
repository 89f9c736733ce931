// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"encoding/xml"
	"fmt"
	"io"
)

// TestSummary aggregates a JUnit-style test report.
type TestSummary struct {
	// Tests is the total number of test cases.
	Tests int

	// Failures is the number of assertion failures.
	Failures int

	// Errors is the number of cases aborted by an unexpected error.
	Errors int

	// Skipped is the number of cases not run.
	Skipped int

	// Time is the reported wall-clock total in seconds.
	Time float64

	// Failed lists the fully qualified names of failed and errored
	// cases, in document order.
	Failed []string
}

// Passed reports whether the run had no failures and no errors.
func (s *TestSummary) Passed() bool {
	return s.Failures == 0 && s.Errors == 0
}

// junitSuites is the <testsuites> document root. Some producers emit a
// single <testsuite> root instead; ParseJUnit handles both.
type junitSuites struct {
	XMLName xml.Name     `xml:"testsuites"`
	Suites  []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name   string       `xml:"name,attr"`
	Time   float64      `xml:"time,attr"`
	Cases  []junitCase  `xml:"testcase"`
	Suites []junitSuite `xml:"testsuite"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Failures  []junitDetail `xml:"failure"`
	Errors    []junitDetail `xml:"error"`
	Skipped   *junitDetail  `xml:"skipped"`
}

type junitDetail struct {
	Message string `xml:"message,attr"`
}

// ParseJUnit reads a JUnit-style XML report and aggregates it. Counts
// are derived from the test cases themselves rather than trusted from
// the suite attributes, since producers disagree about whether suite
// counts include nested suites.
func ParseJUnit(r io.Reader) (*TestSummary, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading test report: %w", err)
	}

	var suites []junitSuite

	var document junitSuites
	if err := xml.Unmarshal(data, &document); err == nil {
		suites = document.Suites
	} else {
		// Single <testsuite> root.
		var suite junitSuite
		if suiteErr := xml.Unmarshal(data, &suite); suiteErr != nil {
			return nil, fmt.Errorf("parsing test report: %w", err)
		}
		suites = []junitSuite{suite}
	}

	summary := &TestSummary{}
	for _, suite := range suites {
		accumulate(summary, suite, suite.Name)
	}
	return summary, nil
}

func accumulate(summary *TestSummary, suite junitSuite, prefix string) {
	summary.Time += suite.Time
	for _, testCase := range suite.Cases {
		summary.Tests++
		name := qualifiedName(prefix, testCase)
		switch {
		case len(testCase.Failures) > 0:
			summary.Failures++
			summary.Failed = append(summary.Failed, name)
		case len(testCase.Errors) > 0:
			summary.Errors++
			summary.Failed = append(summary.Failed, name)
		case testCase.Skipped != nil:
			summary.Skipped++
		}
	}
	for _, nested := range suite.Suites {
		// Nested suite time is included in the parent's total by most
		// producers; counting cases is safe either way, time is not.
		nestedCopy := nested
		nestedCopy.Time = 0
		accumulate(summary, nestedCopy, nested.Name)
	}
}

func qualifiedName(prefix string, testCase junitCase) string {
	name := testCase.Name
	if testCase.ClassName != "" {
		name = testCase.ClassName + "." + name
	} else if prefix != "" {
		name = prefix + "." + name
	}
	return name
}
