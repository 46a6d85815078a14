package models

import "strings"

// Backend identifies the site platform a dealer's inventory pages run on.
// The tag decides which parser handles the page content and which follow-up
// API, if any, is called when the page itself yields no rows.
type Backend string

const (
	BackendDealerInspire Backend = "DEALER_INSPIRE"
	BackendDealerCom     Backend = "DEALER_COM"
	BackendDealerOn      Backend = "DEALERON"
	BackendCDK           Backend = "CDK"
	BackendCDKGlobal     Backend = "CDK_GLOBAL"
	BackendDealerSocket  Backend = "DEALER_SOCKET"
	BackendSmartPath     Backend = "SMARTPATH"
	BackendTeamVelocity  Backend = "TEAM_VELOCITY"
	BackendDealerAlchemy Backend = "DEALER_ALCHEMY"
	BackendDealerVenom   Backend = "DEALER_VENOM"
	BackendFoxDealer     Backend = "FOX_DEALER"
)

// backendAliases maps tags seen in dealer exports to canonical backend tags.
var backendAliases = map[string]Backend{
	"DEALERINSPIRE":       BackendDealerInspire,
	"DEALERALCHEMIST.COM": BackendDealerAlchemy,
}

// ParseBackend normalizes a raw backend tag to its canonical form. Tags are
// upper-cased and alias forms from dealer exports are folded in. The returned
// backend is not guaranteed to be known; callers check Known when it matters.
func ParseBackend(raw string) Backend {
	tag := strings.ToUpper(strings.TrimSpace(raw))
	if canonical, ok := backendAliases[tag]; ok {
		return canonical
	}
	return Backend(tag)
}

// Known reports whether the backend has a registered parser family.
func (b Backend) Known() bool {
	switch b.Family() {
	case BackendDealerInspire, BackendDealerCom, BackendDealerOn, BackendCDK,
		BackendDealerSocket, BackendSmartPath, BackendTeamVelocity, BackendDealerAlchemy:
		return true
	}
	return false
}

// Family collapses variant tags onto the backend whose parser handles them.
// CDK_GLOBAL pages parse identically to CDK, and DEALER_VENOM and FOX_DEALER
// sites are Dealer Alchemy white-labels.
func (b Backend) Family() Backend {
	switch b {
	case BackendCDKGlobal:
		return BackendCDK
	case BackendDealerVenom, BackendFoxDealer:
		return BackendDealerAlchemy
	}
	return b
}

func (b Backend) String() string { return string(b) }

// ClassifyBackend resolves the backend tag for a dealer at seed time.
// SmartPath templates win over whatever tag the export carries, explicit
// dealer overrides force TEAM_VELOCITY, and DEALER_SOCKET dealers whose
// template betrays a DealerOn site are re-tagged DEALERON.
func ClassifyBackend(raw, urlTemplate string, dealerID int64, teamVelocityIDs map[int64]bool) Backend {
	backend := ParseBackend(raw)
	template := strings.ToLower(urlTemplate)
	if strings.Contains(template, "smartpath") {
		return BackendSmartPath
	}
	if teamVelocityIDs[dealerID] {
		return BackendTeamVelocity
	}
	if backend == BackendDealerSocket &&
		(strings.Contains(template, "dealeron") || strings.Contains(template, "searchnew.aspx")) {
		return BackendDealerOn
	}
	return backend
}
