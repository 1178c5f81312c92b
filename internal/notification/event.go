package notification

import (
	"context"
	"time"
)

// Type names the kind of loan event a user is told about.
type Type string

const (
	TypeLoanRequest         Type = "LOAN:REQUEST"
	TypeLoanApprove         Type = "LOAN:APPROVE"
	TypeLoanReject          Type = "LOAN:REJECT"
	TypeLoanConfirm         Type = "LOAN:CONFIRM"
	TypeLoanVoid            Type = "LOAN:VOID"
	TypeReturnRequest       Type = "RETURN:REQUEST"
	TypeReturnRequestCancel Type = "RETURN:REQUEST:CANCEL"
	TypeReturnConfirm       Type = "RETURN:CONFIRM"
)

// Event is what the receiver sees.
type Event struct {
	Type          Type      `json:"type"`
	ResourceID    string    `json:"resource_id"`
	ResourceTitle string    `json:"resource_title"`
	SenderID      string    `json:"sender_id"`
	SenderName    string    `json:"sender_name"`
	Comment       string    `json:"comment,omitempty"`
	LoanDays      *int      `json:"loan_days,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Notifier delivers an event to one user. Delivery is best effort: callers
// log a failed Notify and carry on.
type Notifier interface {
	Notify(ctx context.Context, receiverID string, ev Event) error
}

// envelope is the pub/sub wire form.
type envelope struct {
	ReceiverID string `json:"receiver_id"`
	Event      Event  `json:"event"`
}
