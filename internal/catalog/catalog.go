// Package catalog fetches a caller's registered API endpoints from the
// remote endpoint-catalog service and derives the display-only fields
// (essential_path) the rest of the pipeline needs.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/bennekrouf/semantic-api0/internal/apierr"
)

// Parameter describes a single input to an Endpoint.
type Parameter struct {
	Name          string
	Description   string
	Required      bool
	Alternatives  []string
	SemanticValue string
}

// Endpoint is an immutable catalog record for one API operation.
type Endpoint struct {
	ID            string
	Name          string
	Text          string
	Description   string
	Verb          string
	Base          string
	Path          string
	EssentialPath string
	APIGroupID    string
	APIGroupName  string
	Parameters    []Parameter
}

// EssentialPath derives the display path for path by dropping every
// "{...}" segment. Applying it twice to its own output is a no-op: once a
// segment has been removed there is nothing left to strip.
func EssentialPath(path string) string {
	segments := strings.Split(path, "/")
	kept := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			continue
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		return "/"
	}
	return "/" + strings.Join(kept, "/")
}

// dedupeParameters collapses duplicate names to their first occurrence.
// It returns a new slice and leaves params untouched. Its only caller is
// Endpoint.Dedupe, which Fetch applies to every endpoint it returns.
func dedupeParameters(params []Parameter) []Parameter {
	seen := make(map[string]struct{}, len(params))
	out := make([]Parameter, 0, len(params))
	for _, p := range params {
		if _, ok := seen[p.Name]; ok {
			continue
		}
		seen[p.Name] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Dedupe returns e with its Parameters collapsed to unique names,
// keeping the first definition of each duplicate.
func (e Endpoint) Dedupe() Endpoint {
	e.Parameters = dedupeParameters(e.Parameters)
	return e
}

// Group is one api_group's worth of endpoints as streamed by the
// catalog service.
type Group struct {
	ID        string
	Name      string
	Endpoints []RawEndpoint
}

// RawEndpoint is the wire-shaped endpoint record before essential_path
// derivation and group enrichment.
type RawEndpoint struct {
	ID          string
	Name        string
	Text        string
	Description string
	Verb        string
	Base        string
	Path        string
	Parameters  []Parameter
}

// StreamSource abstracts the streaming RPC used to list a user's catalog
// groups. Production code dials the real catalog service
// (catalog/grpcsource); tests substitute a fake.
type StreamSource interface {
	// Stream drains every frame of the user's endpoint groups. It must
	// respect ctx cancellation/deadline.
	Stream(ctx context.Context, address, email string) ([]Group, error)
	// Health reports whether address is reachable, without listing.
	Health(ctx context.Context, address string) error
}

const (
	connectTimeout = 5 * time.Second
	requestTimeout = 10 * time.Second
)

// Client fetches and flattens a user's catalog.
type Client struct {
	source StreamSource
}

// New builds a catalog Client backed by source.
func New(source StreamSource) *Client {
	return &Client{source: source}
}

// Fetch streams the user's endpoint groups and flattens them into a
// single list, enriched with group identity and essential_path.
func (c *Client) Fetch(ctx context.Context, address, email string) ([]Endpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout+requestTimeout)
	defer cancel()

	groups, err := c.source.Stream(ctx, address, email)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "catalog.Fetch", err)
	}

	var out []Endpoint
	for _, g := range groups {
		for _, re := range g.Endpoints {
			out = append(out, Endpoint{
				ID:            re.ID,
				Name:          re.Name,
				Text:          re.Text,
				Description:   re.Description,
				Verb:          re.Verb,
				Base:          re.Base,
				Path:          re.Path,
				EssentialPath: EssentialPath(re.Path),
				APIGroupID:    g.ID,
				APIGroupName:  g.Name,
				Parameters:    re.Parameters,
			}.Dedupe())
		}
	}
	if len(out) == 0 {
		return nil, apierr.New(apierr.NotFound, "catalog.Fetch", "no endpoints found for user")
	}
	return out, nil
}

// Health establishes a connection to address and reports reachability
// without listing endpoints.
func (c *Client) Health(ctx context.Context, address string) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := c.source.Health(ctx, address); err != nil {
		return apierr.Wrap(apierr.FailedPrecondition, "catalog.Health", err)
	}
	return nil
}
