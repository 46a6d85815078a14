package models

import "testing"

func TestParseBackend(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Backend
	}{
		{"canonical", "DEALERON", BackendDealerOn},
		{"lowercase", "cdk_global", BackendCDKGlobal},
		{"whitespace", "  SMARTPATH ", BackendSmartPath},
		{"alias dealerinspire", "DealerInspire", BackendDealerInspire},
		{"alias alchemist domain", "dealeralchemist.com", BackendDealerAlchemy},
		{"unknown passes through", "WEIRD_CMS", Backend("WEIRD_CMS")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseBackend(tt.raw); got != tt.want {
				t.Errorf("ParseBackend(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestBackendFamily(t *testing.T) {
	tests := []struct {
		backend Backend
		want    Backend
	}{
		{BackendCDKGlobal, BackendCDK},
		{BackendCDK, BackendCDK},
		{BackendDealerVenom, BackendDealerAlchemy},
		{BackendFoxDealer, BackendDealerAlchemy},
		{BackendDealerOn, BackendDealerOn},
		{BackendSmartPath, BackendSmartPath},
	}

	for _, tt := range tests {
		if got := tt.backend.Family(); got != tt.want {
			t.Errorf("%s.Family() = %q, want %q", tt.backend, got, tt.want)
		}
	}
}

func TestBackendKnown(t *testing.T) {
	known := []Backend{
		BackendDealerInspire, BackendDealerCom, BackendDealerOn, BackendCDK,
		BackendCDKGlobal, BackendDealerSocket, BackendSmartPath,
		BackendTeamVelocity, BackendDealerAlchemy, BackendDealerVenom, BackendFoxDealer,
	}
	for _, b := range known {
		if !b.Known() {
			t.Errorf("%s.Known() = false, want true", b)
		}
	}
	if Backend("WEIRD_CMS").Known() {
		t.Error(`Backend("WEIRD_CMS").Known() = true, want false`)
	}
}

func TestClassifyBackend(t *testing.T) {
	overrides := map[int64]bool{77: true}

	tests := []struct {
		name     string
		raw      string
		template string
		dealerID int64
		want     Backend
	}{
		{"passthrough", "CDK", "https://x.com/new-inventory/index.htm?model={model_plus}", 1, BackendCDK},
		{"smartpath wins over tag", "DEALERON", "https://smartpath.x.com/inventory/{model_slug}", 1, BackendSmartPath},
		{"smartpath wins over override", "CDK", "/SMARTPATH/new/{model_slug}", 77, BackendSmartPath},
		{"team velocity override", "DEALER_COM", "/new-vehicles/?model={model_plus}", 77, BackendTeamVelocity},
		{"socket coerced by dealeron", "DEALER_SOCKET", "https://x.dealeron.com/searchnew.aspx?mk=Toyota", 1, BackendDealerOn},
		{"socket coerced by searchnew", "dealer_socket", "/searchnew.aspx?Model={model_plus}", 1, BackendDealerOn},
		{"socket kept otherwise", "DEALER_SOCKET", "/inventory/new?model={model_id}", 1, BackendDealerSocket},
		{"alias normalized first", "DealerAlchemist.com", "/new/{model_slug}", 1, BackendDealerAlchemy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyBackend(tt.raw, tt.template, tt.dealerID, overrides)
			if got != tt.want {
				t.Errorf("ClassifyBackend(%q, %q, %d) = %q, want %q",
					tt.raw, tt.template, tt.dealerID, got, tt.want)
			}
		})
	}
}
