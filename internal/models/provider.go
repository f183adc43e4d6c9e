package models

import "fmt"

// Provider identifies a postal data vendor
type Provider string

const (
	ProviderUSPS       Provider = "usps"
	ProviderRoyalMail  Provider = "royalmail"
	ProviderParascript Provider = "parascript"
)

// AllProviders returns the known vendors in display order
func AllProviders() []Provider {
	return []Provider{ProviderUSPS, ProviderRoyalMail, ProviderParascript}
}

// Valid reports whether the provider is one of the known vendors
func (p Provider) Valid() bool {
	switch p {
	case ProviderUSPS, ProviderRoyalMail, ProviderParascript:
		return true
	}
	return false
}

// ModuleID identifies one crawler or builder module. IDs are a closed set so
// that a mistyped identifier can never silently create a new registry entry.
type ModuleID string

const (
	ModuleUSPSCrawler       ModuleID = "usps-crawler"
	ModuleRoyalMailCrawler  ModuleID = "royalmail-crawler"
	ModuleParascriptCrawler ModuleID = "parascript-crawler"
	ModuleUSPSBuilder       ModuleID = "usps-builder"
	ModuleRoyalMailBuilder  ModuleID = "royalmail-builder"
	ModuleParascriptBuilder ModuleID = "parascript-builder"
)

// AllModuleIDs returns the closed set of module identifiers in display order
func AllModuleIDs() []ModuleID {
	return []ModuleID{
		ModuleUSPSCrawler,
		ModuleRoyalMailCrawler,
		ModuleParascriptCrawler,
		ModuleUSPSBuilder,
		ModuleRoyalMailBuilder,
		ModuleParascriptBuilder,
	}
}

// ParseModuleID validates a raw module identifier against the closed set
func ParseModuleID(raw string) (ModuleID, error) {
	id := ModuleID(raw)
	for _, known := range AllModuleIDs() {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown module id: %s", raw)
}

// Provider returns the vendor a module operates on
func (id ModuleID) Provider() Provider {
	switch id {
	case ModuleUSPSCrawler, ModuleUSPSBuilder:
		return ProviderUSPS
	case ModuleRoyalMailCrawler, ModuleRoyalMailBuilder:
		return ProviderRoyalMail
	case ModuleParascriptCrawler, ModuleParascriptBuilder:
		return ProviderParascript
	}
	return ""
}

// Cycle identifies the USPS processing cadence within a month. Empty for
// providers without cycles.
type Cycle string

const (
	CycleNone Cycle = ""
	CycleN    Cycle = "N"
	CycleO    Cycle = "O"
)
