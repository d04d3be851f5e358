package custody

import "github.com/erazemk/oder/internal/model"

// State is the loan state of an order.
type State string

// Loan states.
const (
	StateOK        State = "ok"
	StateOverdue   State = "overdue"
	StateUndefined State = "undefined"
)

// Status is the computed loan state. DaysDelta is positive while days remain
// and negative once the order is late.
type Status struct {
	State     State      `json:"state"`
	DaysDelta int        `json:"days_delta"`
	DueDate   model.Date `json:"due_date"`
}

// ComputeStatus derives the loan state from the pickup date and duration.
// The due date is pickup plus loanDays calendar days; the order is ok through
// the due date and overdue after it.
func ComputeStatus(pickup model.Date, loanDays int, today model.Date) Status {
	if pickup.IsZero() || loanDays <= 0 || today.IsZero() {
		return Status{State: StateUndefined}
	}
	due := pickup.AddDays(loanDays)
	st := Status{State: StateOK, DaysDelta: today.DaysUntil(due), DueDate: due}
	if today.After(due) {
		st.State = StateOverdue
	}
	return st
}

// StatusFor computes the status of an order.
func StatusFor(o *model.Order, today model.Date) Status {
	return ComputeStatus(o.PickupDate, o.LoanDays, today)
}
