package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"
	"unicode/utf8"

	"github.com/keyhub-labs/keyhub/internal/errcode"
	"go.uber.org/zap"
)

const argSummaryLimit = 256

// Capability is one invokable operation of a loaded add-on. Its function is
// unexported: the only way to run it is Gateway.Call.
type Capability struct {
	addon string
	path  Path
	fn    Func
}

// Bind attaches fn to an add-on name and capability path.
func Bind(addon string, path Path, fn Func) Capability {
	return Capability{addon: addon, path: path, fn: fn}
}

// AddOn returns the name of the add-on that provides c.
func (c Capability) AddOn() string { return c.addon }

// Path returns the capability path of c.
func (c Capability) Path() Path { return c.path }

// IsZero reports whether c is unbound.
func (c Capability) IsZero() bool { return c.fn == nil }

// Gateway is the single sanctioned way to execute add-on code. Every call is
// logged on entry and exit, timed, counted, and its failures are mapped onto
// the registry error codes. The gateway holds no locks: concurrent calls,
// including calls on the same capability, proceed in parallel.
type Gateway struct {
	log     *zap.Logger
	metrics *Metrics
}

// NewGateway returns a gateway that logs to log and records into metrics.
// Either may be nil.
func NewGateway(log *zap.Logger, metrics *Metrics) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{log: log, metrics: metrics}
}

// Call invokes c with args and returns its result unchanged. Failures come
// back as coded errors: load-related codes are preserved, anything else is
// reported as errcode.CapabilityExecution wrapping the original cause.
// Calls are never retried and have no built-in timeout; bound them with ctx.
func (g *Gateway) Call(ctx context.Context, c Capability, args ...any) (any, error) {
	name := c.path.String()
	if c.fn == nil {
		return nil, errcode.New(errcode.SchemaMismatch, "capability %q of add-on %q is not bound", name, c.addon)
	}

	log := g.log.With(zap.String("addon", c.addon), zap.String("capability", name))
	log.Debug("entering capability", zap.String("args", summarize(args)))

	start := time.Now()
	result, panicked, err := invoke(ctx, c.fn, args)
	elapsed := time.Since(start)

	if err != nil {
		err = classify(c, err)
		outcome := OutcomeError
		if panicked {
			outcome = OutcomePanic
		}
		log.Error("capability failed",
			zap.Duration("duration", elapsed),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		g.metrics.RecordCall(c.addon, name, outcome, elapsed)
		return nil, err
	}

	log.Debug("exiting capability", zap.Duration("duration", elapsed), zap.String("outcome", OutcomeOK))
	g.metrics.RecordCall(c.addon, name, OutcomeOK, elapsed)
	return result, nil
}

func invoke(ctx context.Context, fn Func, args []any) (result any, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	result, err = fn(ctx, args...)
	return result, false, err
}

// classify maps a capability failure onto the error taxonomy.
func classify(c Capability, err error) error {
	switch errcode.CodeOf(err) {
	case errcode.LoadFailure, errcode.SchemaMismatch, errcode.NotInRegistry,
		errcode.DBLoadFailure, errcode.CapabilityExecution:
		return err
	}
	return errcode.Wrap(errcode.CapabilityExecution, err, "%s.%s", c.addon, c.path)
}

// summarize renders args for the log, truncated to at most argSummaryLimit
// bytes on a rune boundary.
func summarize(args []any) string {
	var s string
	if data, err := json.Marshal(args); err == nil {
		s = string(data)
	} else {
		s = fmt.Sprintf("%v", args)
	}
	if len(s) > argSummaryLimit {
		cut := argSummaryLimit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "…"
	}
	return s
}
