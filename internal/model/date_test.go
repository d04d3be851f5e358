package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2024, time.January, 25)

	if got := d.AddDays(10).String(); got != "2024-02-04" {
		t.Errorf("AddDays across month = %s", got)
	}
	if got := NewDate(2024, time.February, 28).AddDays(1).String(); got != "2024-02-29" {
		t.Errorf("leap day = %s", got)
	}
	if got := d.DaysUntil(NewDate(2024, time.January, 20)); got != -5 {
		t.Errorf("DaysUntil backwards = %d, want -5", got)
	}
	if got := NewDate(2024, time.March, 1).DaysUntil(NewDate(2024, time.April, 1)); got != 31 {
		t.Errorf("DaysUntil = %d, want 31", got)
	}
}

func TestDateOfIgnoresClock(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	late := time.Date(2024, time.January, 5, 23, 30, 0, 0, loc)
	if got := DateOf(late).String(); got != "2024-01-05" {
		t.Errorf("DateOf = %s, want 2024-01-05", got)
	}
}

func TestDateJSON(t *testing.T) {
	var v struct {
		Pickup Date `json:"pickup"`
	}
	if err := json.Unmarshal([]byte(`{"pickup":"2024-01-10"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Pickup.String() != "2024-01-10" {
		t.Errorf("got %s", v.Pickup)
	}

	out, _ := json.Marshal(v)
	if string(out) != `{"pickup":"2024-01-10"}` {
		t.Errorf("marshal = %s", out)
	}

	if err := json.Unmarshal([]byte(`{"pickup":"10/01/2024"}`), &v); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestDateScan(t *testing.T) {
	var d Date
	if err := d.Scan("2024-03-01"); err != nil {
		t.Fatalf("Scan string: %v", err)
	}
	if d.String() != "2024-03-01" {
		t.Errorf("got %s", d)
	}
	if err := d.Scan(nil); err != nil || !d.IsZero() {
		t.Errorf("Scan nil: %v, zero=%v", err, d.IsZero())
	}
	if err := d.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}
