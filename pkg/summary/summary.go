// Package summary reduces the outcome of a data source to one check result.
package summary

import (
	"github.com/pershinghar/go-host-datasource/pkg/failure"
	"github.com/pershinghar/go-host-datasource/pkg/models"
	"github.com/pershinghar/go-host-datasource/pkg/result"
	"github.com/pershinghar/go-host-datasource/pkg/sections"
)

// Check states.
const (
	StateOK = iota
	StateWarn
	StateCrit
	StateUnknown
)

var stateMarkers = [...]string{"", "(!)", "(!!)", "(?)"}

// StateMarker returns the output suffix for a state.
func StateMarker(state int) string {
	if state < 0 || state >= len(stateMarkers) {
		return stateMarkers[StateUnknown]
	}
	return stateMarkers[state]
}

// Reducer summarizes successfully parsed host sections. Each transport
// brings its own.
type Reducer interface {
	Reduce(hs *sections.HostSections) models.ServiceCheckResult
}

// ReducerFunc adapts a function to Reducer.
type ReducerFunc func(hs *sections.HostSections) models.ServiceCheckResult

func (f ReducerFunc) Reduce(hs *sections.HostSections) models.ServiceCheckResult { return f(hs) }

// Summarizer maps results to check results using an exit code spec.
type Summarizer struct {
	exitSpec models.ExitSpec
	reducer  Reducer
}

// New returns a summarizer for exitSpec and reducer.
func New(exitSpec models.ExitSpec, reducer Reducer) *Summarizer {
	return &Summarizer{exitSpec: exitSpec, reducer: reducer}
}

// Summarize always returns a result: a successful result goes to the
// reducer, an error is reported with the state its category maps to.
func (s *Summarizer) Summarize(hs result.Result[*sections.HostSections]) models.ServiceCheckResult {
	if hs.IsOK() {
		return s.reducer.Reduce(hs.Unwrap())
	}

	err := hs.UnwrapErr()
	status := s.ExtractStatus(err)
	return models.ServiceCheckResult{
		Status:  status,
		Output:  err.Error() + StateMarker(status),
		Metrics: []models.Metric{},
	}
}

// ExtractStatus returns the state configured for the category of err.
func (s *Summarizer) ExtractStatus(err error) int {
	switch category := failure.Classify(err); category {
	case failure.CategoryException:
		return s.exitSpec.Get(string(category), StateUnknown)
	default:
		return s.exitSpec.Get(string(category), StateCrit)
	}
}
