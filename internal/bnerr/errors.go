// Package bnerr defines the failures surfaced by network construction and
// inference. Every typed error reports the variable, edge or value that
// triggered it and matches one of the sentinels below with errors.Is.
package bnerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrStructural            = errors.New("malformed network")
	ErrNormalization         = errors.New("cpt row does not sum to 1")
	ErrDomain                = errors.New("value outside variable domain")
	ErrUnknownVariable       = errors.New("unknown variable")
	ErrContradictoryEvidence = errors.New("evidence has zero probability")
	ErrNotInScope            = errors.New("variable not in factor scope")
	ErrDegenerateFactor      = errors.New("degenerate factor")
	ErrEmptyQuery            = errors.New("query has no variables")
	ErrInvariant             = errors.New("internal invariant violated")
)

type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

func (e *CycleError) Is(target error) bool { return target == ErrStructural }

// ScopeMismatchError reports a CPT whose scope disagrees with the declared
// parents, or two factors that use one name for different domains.
type ScopeMismatchError struct {
	Variable string
	Detail   string
}

func (e *ScopeMismatchError) Error() string {
	return fmt.Sprintf("scope mismatch on %q: %s", e.Variable, e.Detail)
}

func (e *ScopeMismatchError) Is(target error) bool { return target == ErrStructural }

// DefinitionError covers malformed variable declarations: duplicate or empty
// names, empty or repeated states.
type DefinitionError struct {
	Variable string
	Detail   string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid variable %q: %s", e.Variable, e.Detail)
}

func (e *DefinitionError) Is(target error) bool { return target == ErrStructural }

type NormalizationError struct {
	Variable string
	Row      int
	Sum      float64
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("cpt of %q: row %d sums to %g", e.Variable, e.Row, e.Sum)
}

func (e *NormalizationError) Is(target error) bool { return target == ErrNormalization }

type DomainError struct {
	Variable string
	Value    string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%q is not a state of %q", e.Value, e.Variable)
}

func (e *DomainError) Is(target error) bool { return target == ErrDomain }

// UnassignedError reports a lookup whose assignment leaves a scope variable
// without a state.
type UnassignedError struct {
	Variable string
}

func (e *UnassignedError) Error() string {
	return fmt.Sprintf("assignment is missing variable %q", e.Variable)
}

func (e *UnassignedError) Is(target error) bool { return target == ErrDomain }

type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable %q", e.Name)
}

func (e *UnknownVariableError) Is(target error) bool { return target == ErrUnknownVariable }

type NotInScopeError struct {
	Variable string
}

func (e *NotInScopeError) Error() string {
	return fmt.Sprintf("variable %q is not in factor scope", e.Variable)
}

func (e *NotInScopeError) Is(target error) bool { return target == ErrNotInScope }

type DegenerateFactorError struct {
	Total float64
}

func (e *DegenerateFactorError) Error() string {
	return fmt.Sprintf("cannot normalize factor with total %g", e.Total)
}

func (e *DegenerateFactorError) Is(target error) bool { return target == ErrDegenerateFactor }

type ContradictoryEvidenceError struct {
	Evidence map[string]string
}

func (e *ContradictoryEvidenceError) Error() string {
	names := make([]string, 0, len(e.Evidence))
	for name := range e.Evidence {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, len(names))
	for i, name := range names {
		pairs[i] = name + "=" + e.Evidence[name]
	}
	return fmt.Sprintf("evidence {%s} has zero probability", strings.Join(pairs, ", "))
}

func (e *ContradictoryEvidenceError) Is(target error) bool {
	return target == ErrContradictoryEvidence
}

// InvariantViolation signals a bug in the engine, never bad input.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "invariant violated: " + e.Detail
}

func (e *InvariantViolation) Is(target error) bool { return target == ErrInvariant }

// IsInputError reports whether err was caused by the caller's network, query
// or evidence rather than by a defect.
func IsInputError(err error) bool {
	return errors.Is(err, ErrStructural) ||
		errors.Is(err, ErrNormalization) ||
		errors.Is(err, ErrDomain) ||
		errors.Is(err, ErrUnknownVariable) ||
		errors.Is(err, ErrContradictoryEvidence) ||
		errors.Is(err, ErrEmptyQuery)
}
