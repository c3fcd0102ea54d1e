package session

// capabilityTable is the fixed mapping from raw numeric permission codes to
// named capabilities. Codes without an entry are dropped silently when
// deriving the capability set; that is intentional, not misconfiguration
// detection territory.
var capabilityTable = map[int]string{
	100: "search",
	110: "search.advanced",
	120: "search.export",
	200: "records.read",
	210: "records.write",
	300: "export",
	310: "export.bulk",
	400: "dashboard",
	410: "dashboard.admin",
	500: "api.access",
	900: "admin.users",
	910: "admin.billing",
}

// deriveCapabilities maps raw permission codes through the table.
func deriveCapabilities(codes []int) map[string]struct{} {
	caps := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if name, ok := capabilityTable[code]; ok {
			caps[name] = struct{}{}
		}
	}
	return caps
}
