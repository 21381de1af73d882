package realtime

import (
	"github.com/google/uuid"
)

// Event names carried on change topics.
const (
	EventApplicationsChanged  = "applications_changed"
	EventNotificationsChanged = "notifications_changed"
	EventSignedIn             = "signed_in"
	EventSignedOut            = "signed_out"
)

// ApplicationsTopic carries changes to any application of an organization.
func ApplicationsTopic(orgID uuid.UUID) string {
	return "org:" + orgID.String() + ":applications"
}

// NotificationsTopic carries changes to a member's notifications.
func NotificationsTopic(memberID uuid.UUID) string {
	return "member:" + memberID.String() + ":notifications"
}

// IdentityTopic carries signed-in / signed-out events of one credential.
func IdentityTopic(credentialID uuid.UUID) string {
	return "identity:" + credentialID.String()
}
