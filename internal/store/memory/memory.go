// Package memory provides an in-memory implementation of the
// progressive-matching store, suitable for development, testing, and
// single-node deployments where persistence across restarts is not
// required.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bennekrouf/semantic-api0/internal/catalog"
	"github.com/bennekrouf/semantic-api0/internal/store"
)

type key struct {
	conv     string
	endpoint string
}

// Store is an in-memory implementation of store.Store. It is safe for
// concurrent use.
type Store struct {
	mu   sync.RWMutex
	rows map[key]store.OngoingMatch
	now  func() string
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{
		rows: make(map[key]store.OngoingMatch),
		now:  func() string { return time.Now().UTC().Format(time.RFC3339) },
	}
}

func (s *Store) Update(ctx context.Context, conv, endpoint string, newParams []store.ParameterValue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{conv, endpoint}
	row, exists := s.rows[k]
	if !exists {
		row = store.OngoingMatch{ConversationID: conv, EndpointID: endpoint, CreatedAt: s.now()}
	}
	row.Parameters = mergeParameters(row.Parameters, newParams)
	row.UpdatedAt = s.now()
	s.rows[k] = row
	return nil
}

func (s *Store) Get(ctx context.Context, conv, endpoint string) (store.OngoingMatch, error) {
	if err := ctx.Err(); err != nil {
		return store.OngoingMatch{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[key{conv, endpoint}]
	if !ok {
		return store.OngoingMatch{}, store.ErrNotFound
	}
	return row, nil
}

func (s *Store) GetIncomplete(ctx context.Context, conv string) (store.OngoingMatch, error) {
	if err := ctx.Err(); err != nil {
		return store.OngoingMatch{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for k, row := range s.rows {
		if k.conv == conv {
			return row, nil
		}
	}
	return store.OngoingMatch{}, store.ErrNotFound
}

func (s *Store) Complete(ctx context.Context, conv, endpoint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, key{conv, endpoint})
	return nil
}

func (s *Store) CheckCompletion(ctx context.Context, conv, endpoint string, requiredNames []string, endpointParameters []catalog.Parameter) (store.ProgressiveMatchResult, error) {
	if err := ctx.Err(); err != nil {
		return store.ProgressiveMatchResult{}, err
	}
	s.mu.RLock()
	row, ok := s.rows[key{conv, endpoint}]
	s.mu.RUnlock()

	var matched []store.ParameterValue
	if ok {
		matched = row.Parameters
	}
	return store.CheckCompletionResult(conv, endpoint, requiredNames, endpointParameters, matched), nil
}

// mergeParameters overwrites same-named entries with newValues and
// appends any new names, preserving the original slice's order for
// unchanged entries.
func mergeParameters(existing, newValues []store.ParameterValue) []store.ParameterValue {
	merged := append([]store.ParameterValue(nil), existing...)
	index := make(map[string]int, len(merged))
	for i, p := range merged {
		index[p.Name] = i
	}
	for _, p := range newValues {
		if i, ok := index[p.Name]; ok {
			merged[i] = p
		} else {
			index[p.Name] = len(merged)
			merged = append(merged, p)
		}
	}
	return merged
}
