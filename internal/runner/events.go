package runner

import (
	"github.com/charmbracelet/log"

	"streamscout/internal/provider"
)

// RunStep identifies one provider invocation within a run.
type RunStep struct {
	RunID string
	ID    string
	Kind  provider.Kind
	URL   string // embed URL, empty for sources
}

// RunError is a per-provider failure that the run recovered from.
type RunError struct {
	RunID   string
	ID      string
	Kind    provider.Kind
	Outcome provider.Outcome
	Err     error
}

// Events are optional hooks observing a run. Nil fields are skipped.
type Events struct {
	OnInit           func(runID string, order []string)
	OnStart          func(step RunStep)
	OnError          func(e RunError)
	OnDiscoverEmbeds func(runID, sourceID string, refs []provider.EmbedRef)
}

func (ev Events) init(runID string, order []string) {
	if ev.OnInit != nil {
		ev.OnInit(runID, order)
	}
}

func (ev Events) start(step RunStep) {
	if ev.OnStart != nil {
		ev.OnStart(step)
	}
}

func (ev Events) error(runID, id string, kind provider.Kind, err error) {
	if ev.OnError != nil {
		ev.OnError(RunError{RunID: runID, ID: id, Kind: kind, Outcome: provider.Classify(err), Err: err})
	}
}

func (ev Events) discover(runID, sourceID string, refs []provider.EmbedRef) {
	if ev.OnDiscoverEmbeds != nil {
		ev.OnDiscoverEmbeds(runID, sourceID, refs)
	}
}

// merge returns events that call ev's hooks and then other's.
func (ev Events) merge(other Events) Events {
	return Events{
		OnInit:  chain2(ev.OnInit, other.OnInit),
		OnStart: chain1(ev.OnStart, other.OnStart),
		OnError: chain1(ev.OnError, other.OnError),
		OnDiscoverEmbeds: func(runID, sourceID string, refs []provider.EmbedRef) {
			ev.discover(runID, sourceID, refs)
			other.discover(runID, sourceID, refs)
		},
	}
}

func chain1[A any](a, b func(A)) func(A) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(x A) { a(x); b(x) }
}

func chain2[A, B any](a, b func(A, B)) func(A, B) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(x A, y B) { a(x, y); b(x, y) }
}

// LogEvents reports run progress on logger. Not-found outcomes are routine
// and logged at debug; transport trouble at warn; configuration errors are
// bugs and logged at error.
func LogEvents(logger *log.Logger) Events {
	return Events{
		OnInit: func(runID string, order []string) {
			logger.Debug("run started", "run", runID, "sources", order)
		},
		OnStart: func(step RunStep) {
			if step.Kind == provider.KindEmbed {
				logger.Debug("trying embed", "run", step.RunID, "embed", step.ID, "url", step.URL)
				return
			}
			logger.Debug("trying source", "run", step.RunID, "source", step.ID)
		},
		OnError: func(e RunError) {
			kv := []any{"run", e.RunID, string(e.Kind), e.ID, "outcome", e.Outcome.String(), "err", e.Err}
			switch e.Outcome {
			case provider.OutcomeNotFound:
				logger.Debug("provider found nothing", kv...)
			case provider.OutcomeTransport, provider.OutcomeBlocked:
				logger.Warn("provider request failed", kv...)
			case provider.OutcomeConfiguration:
				logger.Error("provider misconfigured", kv...)
			case provider.OutcomeNormalization:
				logger.Warn("provider returned no playable stream", kv...)
			case provider.OutcomeCancelled:
				logger.Debug("provider cancelled", kv...)
			default:
				logger.Warn("provider failed", kv...)
			}
		},
		OnDiscoverEmbeds: func(runID, sourceID string, refs []provider.EmbedRef) {
			logger.Debug("embeds discovered", "run", runID, "source", sourceID, "count", len(refs))
		},
	}
}
