package parsers

import "github.com/ternarybob/lotwatch/internal/models"

// ParseFunc turns captured page content into inventory rows.
type ParseFunc func(content string) ([]models.ParsedRow, error)

// Followup identifies the API family consulted when a backend's page content
// parses to zero rows.
type Followup int

const (
	FollowupNone Followup = iota
	FollowupCDK
	FollowupAlgolia
	FollowupTypesense
)

// Entry describes how one backend family's inventory is read. RawHTML marks
// backends whose input is script-bearing markup rather than rendered text:
// Team Velocity reads ld+json nodes, and DealerOn and SmartPath (Parse nil)
// only carry API credentials, so the orchestrator drives those flows against
// the raw page.
type Entry struct {
	Parse    ParseFunc
	RawHTML  bool
	Followup Followup
}

var registry = map[models.Backend]Entry{
	models.BackendDealerInspire: {Parse: ParseDealerInspire, Followup: FollowupAlgolia},
	models.BackendDealerCom:     {Parse: ParseDealerCom},
	models.BackendDealerOn:      {RawHTML: true},
	models.BackendCDK:           {Parse: ParseCDK, Followup: FollowupCDK},
	models.BackendDealerSocket:  {Parse: ParseDealerSocket},
	models.BackendSmartPath:     {RawHTML: true},
	models.BackendTeamVelocity:  {Parse: ParseTeamVelocity, RawHTML: true},
	models.BackendDealerAlchemy: {Parse: ParseDealerAlchemy, Followup: FollowupTypesense},
}

// Lookup resolves the registry entry for a backend, collapsing variant tags
// onto their parser family first.
func Lookup(backend models.Backend) (Entry, error) {
	if entry, ok := registry[backend.Family()]; ok {
		return entry, nil
	}
	return Entry{}, unknownBackendError(backend)
}
