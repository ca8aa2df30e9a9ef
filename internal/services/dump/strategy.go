// Package dump builds and executes database dump invocations.
package dump

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/opsdeck/dbackup/internal/models"
)

// ErrUnknownEngine reports a target type with no registered strategy.
var ErrUnknownEngine = errors.New("unknown backup type")

// Invocation is a fully built dump command for one target. Env carries the
// password material; it is appended to the inherited environment and never
// appears in Args.
type Invocation struct {
	Name string
	Args []string
	Env  []string
}

// Strategy builds the engine-specific dump invocation and output filename.
// Implementations are pure; they never touch the filesystem or the network.
type Strategy interface {
	BuildInvocation(target models.Target) Invocation
	OutputFilename(target string, now time.Time) string
}

// Registry maps an engine type tag to its dump strategy.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates a registry holding the supported engines.
func NewRegistry() *Registry {
	return &Registry{
		strategies: map[string]Strategy{
			models.EnginePostgreSQL: PostgresStrategy{},
			models.EngineMariaDB:    MariaDBStrategy{},
		},
	}
}

// ForType resolves the strategy for an engine type tag.
func (r *Registry) ForType(engine string) (Strategy, error) {
	strategy, ok := r.strategies[engine]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)",
			ErrUnknownEngine, engine, strings.Join(r.Engines(), ", "))
	}

	return strategy, nil
}

// Engines lists the supported type tags in sorted order.
func (r *Registry) Engines() []string {
	engines := make([]string, 0, len(r.strategies))
	for engine := range r.strategies {
		engines = append(engines, engine)
	}
	sort.Strings(engines)

	return engines
}

// timestampFormat renders UTC instants in a compact ISO 8601 form that is
// safe in filenames and sorts chronologically.
const timestampFormat = "20060102T150405Z"

// dumpFilename builds the output filename for one target and instant.
func dumpFilename(target string, now time.Time) string {
	return fmt.Sprintf("%s_%s.sql", target, now.UTC().Format(timestampFormat))
}

var filenameTimestamp = regexp.MustCompile(`_(\d{8}T\d{6})Z\.sql(\.gz)?$`)

// ParseFilename splits a dump filename into the target it was produced for
// and the encoded dump instant. ok is false for files that do not follow the
// convention of OutputFilename. Target names may themselves contain
// underscores; only the final stamp suffix is stripped.
func ParseFilename(name string) (target string, ts time.Time, ok bool) {
	loc := filenameTimestamp.FindStringSubmatchIndex(name)
	if loc == nil {
		return "", time.Time{}, false
	}

	ts, err := time.Parse("20060102T150405", name[loc[2]:loc[3]])
	if err != nil {
		return "", time.Time{}, false
	}

	return name[:loc[0]], ts.UTC(), true
}
