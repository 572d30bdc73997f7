package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pershinghar/go-host-datasource/pkg/config"
	"github.com/pershinghar/go-host-datasource/pkg/cputrack"
	"github.com/pershinghar/go-host-datasource/pkg/failure"
	"github.com/pershinghar/go-host-datasource/pkg/parser"
	"github.com/pershinghar/go-host-datasource/pkg/result"
	"github.com/pershinghar/go-host-datasource/pkg/sections"
	"github.com/pershinghar/go-host-datasource/pkg/util"
)

// Checker parses raw data and adds the persisted sections of the host.
type Checker[R any] struct {
	parser        *parser.Parser[R]
	persistedPath string
	options       *config.Options
	tracker       *cputrack.Tracker
	trackingID    string
	logger        *slog.Logger
}

// NewChecker returns a checker keeping persisted sections at persistedPath.
func NewChecker[R any](p *parser.Parser[R], persistedPath string, options *config.Options, tracker *cputrack.Tracker, trackingID string, logger *slog.Logger) *Checker[R] {
	if options == nil {
		options = config.NewOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker[R]{
		parser:        p,
		persistedPath: persistedPath,
		options:       options,
		tracker:       tracker,
		trackingID:    trackingID,
		logger:        logger,
	}
}

// Check returns the host sections or the error that prevented them. With
// Options.Debug set, failures in the parser transform or the persisted
// sections panic.
func (c *Checker[R]) Check(raw result.Result[R]) (res result.Result[*sections.HostSections]) {
	c.tracker.Track(c.trackingID, func() {
		res = c.check(raw)
	})
	return res
}

func (c *Checker[R]) check(raw result.Result[R]) result.Result[*sections.HostSections] {
	parsed := c.parser.Parse(raw)
	if raw.IsErr() {
		return parsed
	}
	if parsed.IsErr() {
		err := parsed.UnwrapErr()
		c.logError(err)
		var panicErr *failure.PanicError
		if c.options.Debug && errors.As(err, &panicErr) {
			panic(panicErr.Value)
		}
		return parsed
	}

	hs := parsed.Unwrap()
	if err := c.addPersisted(hs); err != nil {
		err = fmt.Errorf("adding persisted sections: %w", err)
		c.logError(err)
		if c.options.Debug {
			panic(err)
		}
		return result.Err[*sections.HostSections](err)
	}
	return result.OK(hs)
}

func (c *Checker[R]) addPersisted(hs *sections.HostSections) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if c.options.Debug {
				c.logError(failure.FromPanic(r))
				panic(r)
			}
			err = failure.FromPanic(r)
		}
	}()
	return hs.AddPersistedSections(c.persistedPath, c.options.OutdatedPersistedSectionsAllowed(), c.logger)
}

func (c *Checker[R]) logError(err error) {
	c.logger.Log(context.Background(), util.LevelVerbose, "ERROR: "+err.Error())
}
