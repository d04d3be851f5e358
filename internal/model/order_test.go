package model

import (
	"slices"
	"testing"
)

func testOrder() Order {
	return Order{
		ID: "A",
		Items: []LineItem{
			{Model: "Tubo 3m", Quantity: 2, Active: []string{"0001", "0002"}},
			{Model: "Braçadeira", Quantity: 1, Active: []string{"0100"}, Returned: []string{"0101"}},
		},
	}
}

func TestOrderRelease(t *testing.T) {
	o := testOrder()

	if !o.Release("0002") {
		t.Fatal("expected 0002 to be released")
	}
	if o.Holds("0002") {
		t.Error("0002 still active after release")
	}
	if !slices.Equal(o.Items[0].Returned, []string{"0002"}) {
		t.Errorf("expected returned [0002], got %v", o.Items[0].Returned)
	}

	// Second release is a no-op.
	if o.Release("0002") {
		t.Error("expected second release to report no change")
	}
	if len(o.Items[0].Returned) != 1 {
		t.Errorf("expected returned set unchanged, got %v", o.Items[0].Returned)
	}

	if o.Release("9999") {
		t.Error("expected release of unknown id to report no change")
	}
}

func TestOrderCloneIsDeep(t *testing.T) {
	o := testOrder()
	c := o.Clone()
	c.Release("0001")

	if !o.Holds("0001") {
		t.Error("releasing on the clone changed the original")
	}
	if c.Holds("0001") {
		t.Error("clone still holds 0001")
	}
}

func TestOrderCounts(t *testing.T) {
	o := testOrder()
	if got := o.ActiveCount(); got != 3 {
		t.Errorf("ActiveCount = %d, want 3", got)
	}
	if !o.HasReturned() {
		t.Error("expected HasReturned")
	}
	if got := o.ItemHolding("0100"); got != 1 {
		t.Errorf("ItemHolding(0100) = %d, want 1", got)
	}
	if got := o.ActiveIDs(); !slices.Equal(got, []string{"0001", "0002", "0100"}) {
		t.Errorf("ActiveIDs = %v", got)
	}
}

func TestNormalizeModel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Tubo 3m", "tubo 3m"},
		{"  TUBO   3M ", "tubo 3m"},
		{"tubo\t3m", "tubo 3m"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeModel(tt.in); got != tt.want {
			t.Errorf("NormalizeModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidAssetID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"0007", true},
		{"9999", true},
		{"007", false},
		{"00070", false},
		{"00a7", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidAssetID(tt.id, DefaultIDWidth); got != tt.want {
			t.Errorf("ValidAssetID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
