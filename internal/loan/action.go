package loan

import "strings"

// Action is one step of the loan lifecycle.
type Action int

const (
	ActionRequestLoan Action = iota + 1
	ActionApproveLoan
	ActionCancelLoan
	ActionRejectLoan
	ActionConfirmLoan
	ActionVoidLoan
	ActionRequestReturn
	ActionCancelReturn
	ActionConfirmReturn
)

var actionNames = map[Action]string{
	ActionRequestLoan:   "REQUEST_LOAN",
	ActionApproveLoan:   "APPROVE_LOAN",
	ActionCancelLoan:    "CANCEL_LOAN",
	ActionRejectLoan:    "REJECT_LOAN",
	ActionConfirmLoan:   "CONFIRM_LOAN",
	ActionVoidLoan:      "VOID_LOAN",
	ActionRequestReturn: "REQUEST_RETURN",
	ActionCancelReturn:  "CANCEL_RETURN",
	ActionConfirmReturn: "CONFIRM_RETURN",
}

// AllActions lists every action in lifecycle order.
var AllActions = []Action{
	ActionRequestLoan, ActionApproveLoan, ActionCancelLoan, ActionRejectLoan,
	ActionConfirmLoan, ActionVoidLoan, ActionRequestReturn, ActionCancelReturn,
	ActionConfirmReturn,
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// OwnerInitiated reports whether the resource owner performs the action.
// The remaining actions are performed by the requester.
func (a Action) OwnerInitiated() bool {
	switch a {
	case ActionApproveLoan, ActionRejectLoan, ActionVoidLoan,
		ActionRequestReturn, ActionCancelReturn, ActionConfirmReturn:
		return true
	}
	return false
}

// ParseAction accepts "REQUEST_LOAN", "request_loan" or "request-loan".
func ParseAction(s string) (Action, error) {
	name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for a, n := range actionNames {
		if n == name {
			return a, nil
		}
	}
	return 0, ErrUnknownAction
}
