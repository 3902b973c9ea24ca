package domain

import "strings"

// NormalizeShiftStatus maps stored status values onto the canonical set.
// Rows written by the legacy schema used lowercase open/closed.
func NormalizeShiftStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "open":
		return ShiftStatusOpen
	case "closed", "pending_review":
		return ShiftStatusPendingReview
	case "approved":
		return ShiftStatusApproved
	case "rejected":
		return ShiftStatusRejected
	default:
		return strings.ToUpper(strings.TrimSpace(status))
	}
}

func IsPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentMpesa, PaymentCard:
		return true
	}
	return false
}

func IsRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleCashier:
		return true
	}
	return false
}

// IsSupervisor reports whether the role may review shifts and decide stock additions.
func IsSupervisor(role string) bool {
	return role == RoleAdmin || role == RoleManager
}
