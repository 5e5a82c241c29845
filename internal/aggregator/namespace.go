package aggregator

import (
	"fmt"
	"strings"

	"switchboard/internal/config"
)

// Separator joins a backend name and a capability name in a prefixed public name.
const Separator = "."

// MaxBackendNameLength bounds backend identifiers.
const MaxBackendNameLength = config.MaxBackendNameLength

// ConflictPolicy decides what happens when a second backend offers a
// capability whose name already has a holder.
type ConflictPolicy string

const (
	// PolicyPrefix registers the newcomer as "<backend>.<name>".
	PolicyPrefix ConflictPolicy = config.ConflictPolicyPrefix
	// PolicyFirstWins drops the newcomer.
	PolicyFirstWins ConflictPolicy = config.ConflictPolicyFirstWins
	// PolicyError fails the newcomer's registration with a ConflictError.
	PolicyError ConflictPolicy = config.ConflictPolicyError
)

// ParseConflictPolicy converts a configuration value. The empty string maps
// to PolicyPrefix.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(s) {
	case "":
		return PolicyPrefix, nil
	case PolicyPrefix, PolicyFirstWins, PolicyError:
		return ConflictPolicy(s), nil
	}
	return "", fmt.Errorf("unknown conflict policy %q", s)
}

// Outcome tags a Decision.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeRejected
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeError:
		return "error"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Decision is the result of resolving one candidate capability name.
// PublicName is only meaningful when Outcome is OutcomeAccepted.
type Decision struct {
	PublicName string
	Outcome    Outcome
	Reason     string
}

// ValidateBackendName rejects names that cannot be used as a namespace.
func ValidateBackendName(name string) error {
	switch {
	case name == "":
		return &InvalidNameError{Name: name, Reason: "name is empty"}
	case strings.Contains(name, Separator):
		return &InvalidNameError{Name: name, Reason: fmt.Sprintf("name contains the separator %q", Separator)}
	case len(name) > MaxBackendNameLength:
		return &InvalidNameError{Name: name, Reason: fmt.Sprintf("name exceeds %d characters", MaxBackendNameLength)}
	}
	return nil
}

// PrefixedName returns the namespaced public name of a capability.
func PrefixedName(backend, name string) string {
	return backend + Separator + name
}

// Resolve decides the public name for candidateName offered by
// candidateBackend. holder is the backend currently holding candidateName
// unqualified, or "" if the name is free. Resolve has no side effects.
//
// Under PolicyError a conflict yields both an OutcomeError decision and a
// *ConflictError; the kind on the error is left for the caller to fill in.
func Resolve(holder, candidateBackend, candidateName string, policy ConflictPolicy) (Decision, error) {
	if holder == "" {
		return Decision{PublicName: candidateName, Outcome: OutcomeAccepted}, nil
	}

	if holder == candidateBackend {
		return Decision{
			Outcome: OutcomeRejected,
			Reason:  fmt.Sprintf("duplicate name within backend %s", candidateBackend),
		}, nil
	}

	switch policy {
	case PolicyFirstWins:
		return Decision{
			Outcome: OutcomeRejected,
			Reason:  fmt.Sprintf("shadowed by backend %s", holder),
		}, nil

	case PolicyError:
		err := &ConflictError{Name: candidateName, Holder: holder, Candidate: candidateBackend}
		return Decision{Outcome: OutcomeError, Reason: err.Error()}, err

	default:
		return Decision{
			PublicName: PrefixedName(candidateBackend, candidateName),
			Outcome:    OutcomeAccepted,
			Reason:     fmt.Sprintf("prefixed, %s holds the bare name", holder),
		}, nil
	}
}
