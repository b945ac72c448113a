package budget

// RequiredApprovals returns the number of approving units needed for a building with
// units units: two thirds, rounded up.
func RequiredApprovals(units int) int {
	if units <= 0 {
		return 0
	}
	return (2*units + 2) / 3
}

// QuorumReached reports whether approved units satisfy the quorum for units.
func QuorumReached(approved, units int) bool {
	return units > 0 && approved >= RequiredApprovals(units)
}
