// Package matching turns a resolved parameter set into a completion
// report and, when incomplete, a natural-language follow-up prompt.
package matching

import (
	"fmt"
	"strings"

	"github.com/bennekrouf/semantic-api0/internal/catalog"
)

// Status classifies how far a request's required parameters are filled.
type Status int

const (
	Incomplete Status = iota
	Partial
	Complete
)

func (s Status) String() string {
	switch s {
	case Complete:
		return "Complete"
	case Partial:
		return "Partial"
	default:
		return "Incomplete"
	}
}

// ParameterMatch is the output-side view of a catalog.Parameter: the same
// name/description plus whatever value was resolved for it, if any.
type ParameterMatch struct {
	Name        string
	Description string
	Value       string
	HasValue    bool
}

// Filled reports whether the match carries a non-empty, trimmed value.
func (m ParameterMatch) Filled() bool {
	return m.HasValue && strings.TrimSpace(m.Value) != ""
}

// MissingField names one parameter still needing a value.
type MissingField struct {
	Name        string
	Description string
}

// MatchingInfo is the completion report derived from a set of resolved
// matches against an endpoint's deduplicated parameter list.
type MatchingInfo struct {
	Status                Status
	TotalRequired          int
	MappedRequired         int
	TotalOptional          int
	MappedOptional         int
	CompletionPercentage   int
	MissingRequired        []MissingField
	MissingOptional        []MissingField
}

// Compute deduplicates params by name (keeping the first occurrence),
// buckets them into required/optional, and reports how many of each
// bucket have a filled match in matches.
func Compute(matches []ParameterMatch, params []catalog.Parameter) MatchingInfo {
	byName := make(map[string]ParameterMatch, len(matches))
	for _, m := range matches {
		if _, exists := byName[m.Name]; !exists {
			byName[m.Name] = m
		}
	}

	seen := make(map[string]bool, len(params))
	info := MatchingInfo{}
	for _, p := range params {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true

		filled := false
		if m, ok := byName[p.Name]; ok {
			filled = m.Filled()
		}

		if p.Required {
			info.TotalRequired++
			if filled {
				info.MappedRequired++
			} else {
				info.MissingRequired = append(info.MissingRequired, MissingField{Name: p.Name, Description: p.Description})
			}
		} else {
			info.TotalOptional++
			if filled {
				info.MappedOptional++
			} else {
				info.MissingOptional = append(info.MissingOptional, MissingField{Name: p.Name, Description: p.Description})
			}
		}
	}

	if info.TotalRequired > 0 {
		info.CompletionPercentage = 100 * info.MappedRequired / info.TotalRequired
	} else {
		info.CompletionPercentage = 100
	}

	switch {
	case info.TotalRequired == 0 || info.MappedRequired == info.TotalRequired:
		info.Status = Complete
	case info.MappedRequired > 0:
		info.Status = Partial
	default:
		info.Status = Incomplete
	}

	return info
}

// UserPrompt renders the natural-language follow-up question for info
// against endpointName, or "" when nothing required is missing.
func UserPrompt(info MatchingInfo, endpointName string) string {
	if len(info.MissingRequired) == 0 {
		return ""
	}

	name := strings.ToLower(endpointName)
	refs := make([]string, len(info.MissingRequired))
	for i, f := range info.MissingRequired {
		refs[i] = fieldReference(f)
	}

	switch len(refs) {
	case 1:
		return fmt.Sprintf("To proceed with %s, I need one more piece of information: %s. Could you please provide that?", name, refs[0])
	case 2:
		return fmt.Sprintf("To complete your %s request, I need %s and %s. Could you provide these details?", name, refs[0], refs[1])
	default:
		head := refs[:len(refs)-1]
		last := refs[len(refs)-1]
		return fmt.Sprintf("To process your %s request, I need a few more details: %s, and %s. Could you provide this information?", name, strings.Join(head, ", "), last)
	}
}

func fieldReference(f MissingField) string {
	normalizedName := strings.NewReplacer("_", " ", "-", " ").Replace(f.Name)
	desc := strings.TrimSpace(f.Description)

	if len(desc) > len(normalizedName)+5 && !strings.HasPrefix(strings.ToLower(desc), "missing parameter") {
		return desc
	}
	return "the " + normalizedName
}
