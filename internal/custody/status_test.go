package custody

import (
	"testing"

	"github.com/erazemk/oder/internal/model"
)

func TestComputeStatus(t *testing.T) {
	pickup := model.NewDate(2024, 1, 1)
	tests := []struct {
		name  string
		today model.Date
		state State
		delta int
	}{
		{"overdue", model.NewDate(2024, 1, 15), StateOverdue, -4},
		{"ok", model.NewDate(2024, 1, 5), StateOK, 6},
		{"due today", model.NewDate(2024, 1, 11), StateOK, 0},
		{"day after", model.NewDate(2024, 1, 12), StateOverdue, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := ComputeStatus(pickup, 10, tt.today)
			if st.State != tt.state || st.DaysDelta != tt.delta {
				t.Errorf("got %s %d, want %s %d", st.State, st.DaysDelta, tt.state, tt.delta)
			}
			if st.DueDate.String() != "2024-01-11" {
				t.Errorf("due = %s", st.DueDate)
			}
		})
	}
}

func TestComputeStatusAcrossMonthEnd(t *testing.T) {
	st := ComputeStatus(model.NewDate(2024, 2, 25), 7, model.NewDate(2024, 3, 1))
	if st.DueDate.String() != "2024-03-03" || st.DaysDelta != 2 {
		t.Errorf("got %s %d", st.DueDate, st.DaysDelta)
	}
}

func TestStatusUndefined(t *testing.T) {
	o := &model.Order{LoanDays: 5}
	if st := StatusFor(o, model.NewDate(2024, 1, 1)); st.State != StateUndefined {
		t.Errorf("state = %s, want undefined", st.State)
	}
}

func TestSummarize(t *testing.T) {
	assets := []model.Asset{
		{ID: "0001", Model: "Tubo 3m", Status: model.AssetOnLoan},
		{ID: "0002", Model: "tubo 3M", Status: model.AssetAvailable},
		{ID: "0100", Model: "Sapata", Status: model.AssetOnLoan},
	}
	late := model.Order{ID: "A", PickupDate: model.NewDate(2024, 1, 1), LoanDays: 3,
		Items: []model.LineItem{{Model: "Tubo 3m", Active: []string{"0001"}}}}
	onTime := model.Order{ID: "B", PickupDate: model.NewDate(2024, 1, 9), LoanDays: 3,
		Items: []model.LineItem{{Model: "Sapata", Active: []string{"0100"}}}}

	s := Summarize(assets, []model.Order{late, onTime}, model.NewDate(2024, 1, 10))
	if s.Total != 3 || s.Available != 1 || s.OnLoan != 2 {
		t.Errorf("totals = %d/%d/%d", s.Total, s.Available, s.OnLoan)
	}
	if len(s.Models) != 2 || s.Models[0].Model != "Sapata" || s.Models[1].Total != 2 {
		t.Errorf("models = %+v", s.Models)
	}
	if s.ActiveOrders != 2 || s.OverdueOrders != 1 || len(s.OverduePieces) != 1 || s.OverduePieces[0] != "0001" {
		t.Errorf("orders: %+v", s)
	}
}

func TestBackoffBounded(t *testing.T) {
	p := DefaultRetryPolicy()
	for n := 0; n < 10; n++ {
		if d := p.backoff(n); d < 0 || d > p.Max {
			t.Errorf("backoff(%d) = %v out of range", n, d)
		}
	}
}
