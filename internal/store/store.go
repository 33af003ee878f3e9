// Package store defines the progressive-matching contract: a keyed
// accumulator of parameter values that persists across conversation
// turns until a request is complete.
package store

import (
	"context"
	"errors"

	"github.com/bennekrouf/semantic-api0/internal/catalog"
)

// ErrNotFound is returned when no row exists for a (conversation,
// endpoint) key.
var ErrNotFound = errors.New("store: ongoing match not found")

// ParameterValue is one resolved (name, value) pair carried in an
// OngoingMatch's parameter blob.
type ParameterValue struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// OngoingMatch is one persisted row: the accumulated parameter values
// for a (conversation, endpoint) pair.
type OngoingMatch struct {
	ConversationID string
	EndpointID     string
	Parameters     []ParameterValue
	CreatedAt      string
	UpdatedAt      string
}

// ProgressiveMatchResult is the snapshot returned after a completion
// check.
type ProgressiveMatchResult struct {
	ConversationID       string
	EndpointID           string
	MatchedParameters    []ParameterValue
	MissingParameters    []string
	IsComplete           bool
	CompletionPercentage int
	ReadyForExecution    bool
}

// Store is the progressive-matching persistence contract. Implementations
// must serialize concurrent upserts for the same key (last-write-wins on
// overlapping parameter names).
type Store interface {
	// Update merges newParams into the row for (conv, endpoint),
	// creating it if absent. Existing names are overwritten; new names
	// are appended. CreatedAt is preserved across updates.
	Update(ctx context.Context, conv, endpoint string, newParams []ParameterValue) error

	// Get returns the exact row for (conv, endpoint), or ErrNotFound.
	Get(ctx context.Context, conv, endpoint string) (OngoingMatch, error)

	// GetIncomplete returns any row for conv (there is at most one
	// expected in practice), or ErrNotFound.
	GetIncomplete(ctx context.Context, conv string) (OngoingMatch, error)

	// Complete deletes the row for (conv, endpoint).
	Complete(ctx context.Context, conv, endpoint string) error

	// CheckCompletion evaluates whether every required parameter is
	// satisfied, allowing alias matches in either direction between the
	// matched parameter names and the endpoint's declared alternatives.
	CheckCompletion(ctx context.Context, conv, endpoint string, requiredNames []string, endpointParameters []catalog.Parameter) (ProgressiveMatchResult, error)
}

// CheckCompletionResult computes missing-required-names and completion
// percentage shared by every Store implementation's CheckCompletion.
// requiredName is satisfied when: (a) it is present verbatim among
// matched names, (b) a matched name appears in the required parameter's
// own alternatives list, or (c) the required name appears in the
// alternatives list of the endpoint parameter a matched value was
// recorded under.
func CheckCompletionResult(conv, endpoint string, requiredNames []string, endpointParameters []catalog.Parameter, matched []ParameterValue) ProgressiveMatchResult {
	altsByName := make(map[string][]string, len(endpointParameters))
	for _, p := range endpointParameters {
		altsByName[p.Name] = p.Alternatives
	}

	matchedNames := make(map[string]bool, len(matched))
	for _, m := range matched {
		matchedNames[m.Name] = true
	}

	var missing []string
	satisfiedCount := 0
	for _, required := range requiredNames {
		if satisfied(required, altsByName[required], matchedNames, altsByName) {
			satisfiedCount++
		} else {
			missing = append(missing, required)
		}
	}

	percentage := 100
	if len(requiredNames) > 0 {
		percentage = 100 * satisfiedCount / len(requiredNames)
	}
	complete := len(missing) == 0

	return ProgressiveMatchResult{
		ConversationID:       conv,
		EndpointID:           endpoint,
		MatchedParameters:    matched,
		MissingParameters:    missing,
		IsComplete:           complete,
		CompletionPercentage: percentage,
		ReadyForExecution:    complete,
	}
}

func satisfied(required string, requiredAlternatives []string, matchedNames map[string]bool, altsByName map[string][]string) bool {
	if matchedNames[required] {
		return true
	}
	for _, alt := range requiredAlternatives {
		if matchedNames[alt] {
			return true
		}
	}
	for matchedName := range matchedNames {
		for _, alt := range altsByName[matchedName] {
			if alt == required {
				return true
			}
		}
	}
	return false
}
