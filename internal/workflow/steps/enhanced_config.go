package steps

import (
	"context"
	"fmt"
	"regexp"

	"github.com/bennekrouf/semantic-api0/internal/apierr"
	"github.com/bennekrouf/semantic-api0/internal/catalog"
	"github.com/bennekrouf/semantic-api0/internal/workflow"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// EnhancedConfigLoading is the first workflow step: it validates the
// caller's email, confirms the catalog is healthy, and fetches the
// caller's endpoints into the shared Context.
type EnhancedConfigLoading struct {
	Catalog        *catalog.Client
	CatalogAddress string
}

func (s *EnhancedConfigLoading) Name() string { return "enhanced_configuration_loading" }

func (s *EnhancedConfigLoading) Execute(ctx context.Context, wc *workflow.Context) error {
	if wc.CallerEmail == "" {
		return apierr.New(apierr.InvalidArgument, s.Name(), "email is required and cannot be empty")
	}
	if !emailPattern.MatchString(wc.CallerEmail) {
		return apierr.New(apierr.InvalidArgument, s.Name(), "email is not syntactically valid")
	}
	if s.CatalogAddress == "" {
		return apierr.New(apierr.FailedPrecondition, s.Name(), "no catalog address provided")
	}

	if err := s.Catalog.Health(ctx, s.CatalogAddress); err != nil {
		return apierr.Wrap(apierr.FailedPrecondition, s.Name(), fmt.Errorf("catalog service is unavailable: %w", err))
	}

	endpoints, err := s.Catalog.Fetch(ctx, s.CatalogAddress, wc.CallerEmail)
	if err != nil {
		// Fetch already classifies its own failure (e.g. Transient for a
		// stream hiccup); re-wrapping under a new Kind here would make
		// errors.Is report both Kinds at once. Propagate it as-is.
		return err
	}
	if len(endpoints) == 0 {
		return apierr.New(apierr.NotFound, s.Name(), fmt.Sprintf("no endpoints found for user %q", wc.CallerEmail))
	}

	wc.Endpoints = endpoints
	wc.PlainEndpoints = make([]workflow.PlainEndpoint, len(endpoints))
	for i, e := range endpoints {
		wc.PlainEndpoints[i] = workflow.PlainEndpoint{ID: e.ID, Text: e.Text, Description: e.Description}
	}
	return nil
}
