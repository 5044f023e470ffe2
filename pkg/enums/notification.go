package enums

// NotificationType is the kind of back-office alert a notification carries.
type NotificationType string

const (
	// NotificationTypeCreditLimit is raised when a posting pushes a store past its credit limit.
	NotificationTypeCreditLimit NotificationType = "credit_limit"
	// NotificationTypeOverdue is raised by the daily sweep for stores past their payment term.
	NotificationTypeOverdue NotificationType = "overdue"
)

func (n NotificationType) IsValid() bool {
	return n == NotificationTypeCreditLimit || n == NotificationTypeOverdue
}
