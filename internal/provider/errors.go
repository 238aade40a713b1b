package provider

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"streamscout/internal/fetcher"
)

// FetchError and UpstreamBlockedError are produced by the fetcher layer and
// re-exported so providers only need one import for the whole taxonomy.
type (
	FetchError           = fetcher.FetchError
	UpstreamBlockedError = fetcher.UpstreamBlockedError
)

// NotFoundError means the provider has nothing for the requested media or URL.
type NotFoundError struct {
	Provider string
	Reason   string
}

func (e *NotFoundError) Error() string {
	if e.Provider == "" {
		return "not found: " + e.Reason
	}
	return fmt.Sprintf("%s: not found: %s", e.Provider, e.Reason)
}

// NotFound builds a *NotFoundError with a formatted reason.
func NotFound(providerID, format string, args ...any) error {
	return &NotFoundError{Provider: providerID, Reason: fmt.Sprintf(format, args...)}
}

// ConfigurationError signals a wiring bug, such as a source handing off to an
// embed id that was never registered.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Msg }

// NormalizationError means a payload had no playable stream in any shape the
// normalizer understands.
type NormalizationError struct {
	Msg string
}

func (e *NormalizationError) Error() string { return "normalization: " + e.Msg }

// DuplicateProviderError is returned by Registry.Register for a reused id.
type DuplicateProviderError struct {
	ID string
}

func (e *DuplicateProviderError) Error() string {
	return fmt.Sprintf("provider %q already registered", e.ID)
}

// IsNotFound reports whether err is, or wraps, a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsBlocked reports whether err is, or wraps, an *UpstreamBlockedError.
func IsBlocked(err error) bool {
	var b *UpstreamBlockedError
	return errors.As(err, &b)
}

// Outcome is the fallback-relevant class of a provider error.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeNotFound
	OutcomeTransport
	OutcomeBlocked
	OutcomeConfiguration
	OutcomeNormalization
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not_found"
	case OutcomeTransport:
		return "transport"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeConfiguration:
		return "configuration"
	case OutcomeNormalization:
		return "normalization"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// Classify maps an error to its Outcome. Blocked is checked before transport
// because a challenge page may also carry a non-2xx status.
func Classify(err error) Outcome {
	var (
		nf   *NotFoundError
		blk  *UpstreamBlockedError
		fe   *FetchError
		conf *ConfigurationError
		norm *NormalizationError
	)
	switch {
	case err == nil:
		return OutcomeFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	case errors.As(err, &nf):
		return OutcomeNotFound
	case errors.As(err, &blk):
		return OutcomeBlocked
	case errors.As(err, &fe):
		return OutcomeTransport
	case errors.As(err, &conf):
		return OutcomeConfiguration
	case errors.As(err, &norm):
		return OutcomeNormalization
	default:
		return OutcomeFailed
	}
}
