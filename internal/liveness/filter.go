package liveness

// Inventory subtypes whose silence is worth alerting on. Everything else in
// the inventory is ignored for liveness purposes.
var trackedSubtypes = map[string]struct{}{
	"ups":        {},
	"epdu":       {},
	"pdu":        {},
	"sensor":     {},
	"sensorgpio": {},
	"sts":        {},
}

// TrackedDevice reports whether an inventory type/subtype pair qualifies for
// liveness tracking.
func TrackedDevice(assetType, subtype string) bool {
	if assetType != "device" {
		return false
	}
	_, ok := trackedSubtypes[subtype]
	return ok
}
