package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/bennekrouf/semantic-api0/internal/apierr"
	"github.com/bennekrouf/semantic-api0/internal/catalog"
	"github.com/bennekrouf/semantic-api0/internal/workflow"
)

// PathParameterExtraction scans the selected endpoint's path for
// "{name}" segments and synthesizes a required parameter for any that
// aren't already declared, producing the effective parameter list the
// remaining steps operate on.
type PathParameterExtraction struct{}

func (s *PathParameterExtraction) Name() string { return "path_parameter_extraction" }

func (s *PathParameterExtraction) Execute(_ context.Context, wc *workflow.Context) error {
	if wc.MatchedEndpoint == nil {
		return apierr.New(apierr.FailedPrecondition, s.Name(), "matched endpoint not available")
	}

	params := append([]catalog.Parameter(nil), wc.MatchedEndpoint.Parameters...)
	existing := make(map[string]bool, len(params))
	for _, p := range params {
		existing[p.Name] = true
	}

	for _, name := range pathSegmentNames(wc.MatchedEndpoint.Path) {
		if existing[name] {
			continue
		}
		existing[name] = true
		params = append(params, catalog.Parameter{
			Name:        name,
			Description: fmt.Sprintf("URL path parameter: %s", name),
			Required:    true,
		})
	}

	wc.EffectiveParameters = params
	return nil
}

// pathSegmentNames returns the names of every "{name}" segment in path,
// in order of appearance.
func pathSegmentNames(path string) []string {
	var names []string
	for _, segment := range strings.Split(path, "/") {
		if len(segment) > 1 && strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			names = append(names, segment[1:len(segment)-1])
		}
	}
	return names
}
