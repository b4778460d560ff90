// Package notifications defines the notification service interface used to
// deliver transactional emails, such as order receipts after a successful
// payment.
package notifications

import "context"

// Notification is a single message to deliver to a user.
type Notification struct {
	ToName    string
	ToAddress string
	Subject   string
	Body      string
	PlainBody string
}

// NotificationService sends notifications to users. Implementations are
// initialized with their own configuration type via New.
type NotificationService interface {
	New(conf any) error
	SendNotification(context.Context, *Notification) error
}
