// Package parser turns the raw data of a fetcher into host sections.
//
// Parser is the transport independent part: it passes errors through and
// shields callers from failures of the transport specific SectionParser.
package parser

import (
	"fmt"
	"log/slog"

	"github.com/pershinghar/go-host-datasource/pkg/failure"
	"github.com/pershinghar/go-host-datasource/pkg/result"
	"github.com/pershinghar/go-host-datasource/pkg/sections"
)

// SectionParser is the transport specific transformation of raw data.
type SectionParser[R any] interface {
	ParseRaw(raw R) (*sections.HostSections, error)
}

// Func adapts a function to SectionParser.
type Func[R any] func(raw R) (*sections.HostSections, error)

func (f Func[R]) ParseRaw(raw R) (*sections.HostSections, error) { return f(raw) }

// Parser wraps a SectionParser for one host.
type Parser[R any] struct {
	hostname string
	parser   SectionParser[R]
	logger   *slog.Logger
}

// New returns a parser for hostname.
func New[R any](hostname string, p SectionParser[R], logger *slog.Logger) *Parser[R] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser[R]{hostname: hostname, parser: p, logger: logger}
}

// Parse returns an error input unchanged. Otherwise it runs the transform;
// an error or a panic from it becomes the error result.
func (p *Parser[R]) Parse(raw result.Result[R]) (res result.Result[*sections.HostSections]) {
	if raw.IsErr() {
		return result.Err[*sections.HostSections](raw.UnwrapErr())
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("Parser panicked", "host", p.hostname, "panic", r)
			res = result.Err[*sections.HostSections](failure.FromPanic(r))
		}
	}()

	hs, err := p.parser.ParseRaw(raw.Unwrap())
	if err != nil {
		return result.Err[*sections.HostSections](err)
	}
	if hs == nil {
		return result.Err[*sections.HostSections](fmt.Errorf("parser for %s returned no host sections", p.hostname))
	}
	return result.OK(hs)
}
