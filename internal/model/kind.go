// Package model defines the entity types flowing through the pipeline.
package model

import "fmt"

// Kind identifies one of the three archived entity kinds. The set is closed:
// paging is uniform across kinds, field extraction is per-kind.
type Kind string

const (
	// KindPlan is the procurement planning record.
	KindPlan Kind = "plan"
	// KindLot is the tender lot record.
	KindLot Kind = "lot"
	// KindContract is the awarded contract record (OrderDetail upstream).
	KindContract Kind = "contract"
)

// AllKinds lists every entity kind in ingestion order.
var AllKinds = []Kind{KindPlan, KindLot, KindContract}

// apiNames maps a Kind to the entity name the remote API expects.
var apiNames = map[Kind]string{
	KindPlan:     "Plan",
	KindLot:      "_Lot",
	KindContract: "OrderDetail",
}

// listFilters holds the per-kind filter object sent with list-page requests.
var listFilters = map[Kind]map[string]any{
	KindPlan:     {},
	KindLot:      {"tru": nil, "includeMyTru": 0},
	KindContract: {},
}

// needsSession marks kinds whose list endpoint silently caps results unless
// the session cookie is attached.
var needsSession = map[Kind]bool{
	KindLot: true,
}

// APIName returns the entity name used in API payloads.
func (k Kind) APIName() string {
	return apiNames[k]
}

// ListFilter returns a copy of the filter object for list-page requests.
func (k Kind) ListFilter() map[string]any {
	filter := make(map[string]any, len(listFilters[k]))
	for key, val := range listFilters[k] {
		filter[key] = val
	}
	return filter
}

// NeedsSession reports whether requests for this kind require the session cookie.
func (k Kind) NeedsSession() bool {
	return needsSession[k]
}

// ParseKind converts a user-supplied name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPlan, KindLot, KindContract:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown entity kind %q (want plan, lot or contract)", s)
	}
}
