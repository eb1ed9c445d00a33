package permission

// OpenAccessHandler allows every operation at no cost. Used as the
// fail-open default policy (a configurable policy choice, not a kernel rule).
func OpenAccessHandler() AccessHandler {
	return HandlerFunc(func(caller, operation string, args map[string]any) Result {
		return Allowed("open access contract")
	})
}

// LockedDownHandler denies every operation. Used as the fail-closed
// default when contracts.default_on_missing=deny.
func LockedDownHandler() AccessHandler {
	return HandlerFunc(func(caller, operation string, args map[string]any) Result {
		return Denied("no access contract registered; default policy is deny")
	})
}

// OwnerOnlyHandler allows only the artifact's creator to act on it; every
// other caller is denied. Grounded on the notion of a small set of
// standard, well-known policies layered under per-artifact overrides
// (system/framework/permission.go).
func OwnerOnlyHandler(ownerPrincipalID string) AccessHandler {
	return HandlerFunc(func(caller, operation string, args map[string]any) Result {
		if caller == ownerPrincipalID {
			return Allowed("caller is owner")
		}
		return Denied("only the owning principal may perform this operation")
	})
}

// ReadOnlyHandler allows read/query operations for anyone but denies
// mutating operations to everyone but the owner.
func ReadOnlyHandler(ownerPrincipalID string) AccessHandler {
	return HandlerFunc(func(caller, operation string, args map[string]any) Result {
		switch operation {
		case "read", "query":
			return Allowed("read operations are open")
		default:
			if caller == ownerPrincipalID {
				return Allowed("caller is owner")
			}
			return Denied("mutating operations require ownership")
		}
	})
}
