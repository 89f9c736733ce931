// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Coverage aggregates a Cobertura-style coverage report.
type Coverage struct {
	// LineRate is the covered fraction of lines, 0 to 1.
	LineRate float64

	// BranchRate is the covered fraction of branches, 0 to 1.
	BranchRate float64

	// Packages holds per-package line rates, in document order.
	Packages []PackageCoverage
}

// PackageCoverage is one package's line coverage.
type PackageCoverage struct {
	Name     string
	LineRate float64
}

// LinePercent returns the line coverage as a 0-100 percentage.
func (c *Coverage) LinePercent() float64 { return c.LineRate * 100 }

type coberturaDocument struct {
	XMLName    xml.Name           `xml:"coverage"`
	LineRate   float64            `xml:"line-rate,attr"`
	BranchRate float64            `xml:"branch-rate,attr"`
	Packages   []coberturaPackage `xml:"packages>package"`
}

type coberturaPackage struct {
	Name     string  `xml:"name,attr"`
	LineRate float64 `xml:"line-rate,attr"`
}

// ParseCobertura reads a Cobertura-style XML coverage report.
func ParseCobertura(r io.Reader) (*Coverage, error) {
	var document coberturaDocument
	if err := xml.NewDecoder(r).Decode(&document); err != nil {
		return nil, fmt.Errorf("parsing coverage report: %w", err)
	}
	if document.LineRate < 0 || document.LineRate > 1 {
		return nil, fmt.Errorf("coverage report: line-rate %v is outside [0, 1]", document.LineRate)
	}

	coverage := &Coverage{
		LineRate:   document.LineRate,
		BranchRate: document.BranchRate,
	}
	for _, pkg := range document.Packages {
		coverage.Packages = append(coverage.Packages, PackageCoverage{
			Name:     pkg.Name,
			LineRate: pkg.LineRate,
		})
	}
	return coverage, nil
}
