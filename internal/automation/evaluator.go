package automation

import (
	"context"
	"fmt"

	"github.com/sporelab/mycelia-core/internal/command"
	"github.com/sporelab/mycelia-core/internal/telemetry"
)

// Issuer dispatches a rule's action command. Satisfied by the command
// manager.
type Issuer interface {
	CreateAndIssue(ctx context.Context, deviceID, name string, params map[string]any, issuedBy string) (*command.Command, error)
}

// Notifier records rule firings for farm staff.
type Notifier interface {
	Info(ctx context.Context, message string, farmID, roomID, deviceID string)
}

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Evaluator matches readings against a room's enabled rules and issues
// action commands for the ones that fire.
//
// There is no firing dedup: a rule whose condition holds fires on every
// matching reading. Hysteresis belongs in the rule's own thresholds
// (and in sensible sensor report intervals), not in hidden state here.
type Evaluator struct {
	rules    Repository
	readings telemetry.Repository
	issuer   Issuer

	notifier Notifier
	logger   Logger
}

// EvaluatorOption configures optional evaluator collaborators.
type EvaluatorOption func(*Evaluator)

// WithNotifier wires rule-fired notifications.
func WithNotifier(n Notifier) EvaluatorOption {
	return func(e *Evaluator) { e.notifier = n }
}

// WithLogger sets the evaluator's logger.
func WithLogger(l Logger) EvaluatorOption {
	return func(e *Evaluator) { e.logger = l }
}

// NewEvaluator creates an evaluator.
func NewEvaluator(rules Repository, readings telemetry.Repository, issuer Issuer, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		rules:    rules,
		readings: readings,
		issuer:   issuer,
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateReading matches one reading against its room's enabled rules.
// Called from the ingestion pipeline; errors are logged, never returned,
// because a broken rule must not fail telemetry ingestion.
func (e *Evaluator) EvaluateReading(ctx context.Context, r *telemetry.Reading) {
	rules, err := e.rules.ListEnabledByRoom(ctx, r.RoomID)
	if err != nil {
		e.logger.Error("loading rules for room failed", "room_id", r.RoomID, "error", err)
		return
	}

	for i := range rules {
		e.apply(ctx, &rules[i], r)
	}
}

// EvaluateRoom evaluates every enabled rule in a room against the most
// recent reading of each device. Used by the on-demand API endpoint.
// Returns the number of rules that fired.
func (e *Evaluator) EvaluateRoom(ctx context.Context, roomID string) (int, error) {
	rules, err := e.rules.ListEnabledByRoom(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("loading rules: %w", err)
	}
	if len(rules) == 0 {
		return 0, nil
	}

	latest, err := e.readings.LatestByRoom(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("loading latest readings: %w", err)
	}

	fired := 0
	for i := range rules {
		for j := range latest {
			if e.apply(ctx, &rules[i], &latest[j]) {
				fired++
			}
		}
	}
	return fired, nil
}

// apply tests one rule against one reading and fires its action if the
// condition holds. Returns whether the rule fired.
func (e *Evaluator) apply(ctx context.Context, rule *Rule, r *telemetry.Reading) bool {
	value, ok := r.Metric(rule.Parameter)
	if !ok {
		// The reading doesn't carry this metric; not a match, not an error.
		return false
	}

	holds, err := rule.Comparator.Compare(value, rule.Threshold)
	if err != nil {
		e.logger.Warn("rule has invalid comparator, skipping",
			"rule_id", rule.ID, "comparator", string(rule.Comparator))
		return false
	}
	if !holds {
		return false
	}

	issuedBy := "rule:" + rule.ID
	_, err = e.issuer.CreateAndIssue(ctx, rule.ActionDeviceID, rule.Action.Command, rule.Action.Params, issuedBy)
	if err != nil {
		e.logger.Error("rule action failed",
			"rule_id", rule.ID, "device_id", rule.ActionDeviceID, "error", err)
		return false
	}

	if e.notifier != nil {
		e.notifier.Info(ctx,
			fmt.Sprintf("rule %q fired: %s %s %g (observed %g), issued %s to %s",
				rule.Name, rule.Parameter, rule.Comparator, rule.Threshold, value,
				rule.Action.Command, rule.ActionDeviceID),
			r.FarmID, rule.RoomID, rule.ActionDeviceID)
	}

	e.logger.Debug("rule fired",
		"rule_id", rule.ID, "room_id", rule.RoomID,
		"parameter", rule.Parameter, "value", value, "threshold", rule.Threshold)

	return true
}
