package strategy

import (
	"strings"
	"testing"
	"time"

	"github.com/jwyoon/anamna/internal/model"
	"github.com/jwyoon/anamna/internal/normalize"
)

func newRuleBranch() *RuleBranch {
	return NewRuleBranch(0.5, normalize.New())
}

func TestRuleBranch_Extract_Basic(t *testing.T) {
	b := newRuleBranch()
	blocks := []model.TextBlock{
		{Text: "Patient admitted 2023-03-10 to the ward for continuous observation and routine monitoring of vital signs throughout the entire stay. Discharged 2023-03-15 in stable condition."},
	}

	events, err := b.Extract(blocks, nil, time.Time{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}

	if events[0].EventType != model.EventAdmission {
		t.Errorf("Expected admission first, got %s", events[0].EventType)
	}
	if events[1].EventType != model.EventDischarge {
		t.Errorf("Expected discharge second, got %s", events[1].EventType)
	}
	for _, ev := range events {
		if ev.Source != model.SourceRule {
			t.Errorf("Expected rule source, got %s", ev.Source)
		}
		if ev.ID == "" {
			t.Error("Expected non-empty event ID")
		}
		if !ev.Date.Resolved() {
			t.Errorf("Expected resolved date for %s", ev.EventType)
		}
	}
}

func TestRuleBranch_Extract_EmptyInput(t *testing.T) {
	b := newRuleBranch()
	if _, err := b.Extract(nil, nil, time.Time{}); err == nil {
		t.Error("Expected error for empty input")
	}
}

func TestRuleBranch_Extract_SkipsPolicyAnchors(t *testing.T) {
	b := newRuleBranch()
	blocks := []model.TextBlock{
		{Text: "Insurance contract signed 2024-01-01 with standard terms covering inpatient care and benefit schedules as described in the annex attached to the agreement. Patient admitted 2023-03-10."},
	}

	events, err := b.Extract(blocks, nil, time.Time{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected policy anchor excluded from events, got %d", len(events))
	}
	if events[0].EventType != model.EventAdmission {
		t.Errorf("Expected the admission event, got %s", events[0].EventType)
	}
}

func TestRuleBranch_Extract_Deterministic(t *testing.T) {
	b := newRuleBranch()
	blocks := []model.TextBlock{
		{Text: "Admitted 2023-03-10. Surgery 2 days after admission. Discharged 2023-03-20."},
	}

	first, err := b.Extract(blocks, nil, time.Time{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := b.Extract(blocks, nil, time.Time{})
		if err != nil {
			t.Fatalf("Extract failed on rerun: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("Nondeterministic event count: %d vs %d", len(again), len(first))
		}
		for j := range first {
			if first[j].ID != again[j].ID || !first[j].Date.Date.Equal(again[j].Date.Date) {
				t.Errorf("Event %d differs between runs", j)
			}
		}
	}
}

func TestRuleBranch_ReferenceFromAnchors(t *testing.T) {
	b := newRuleBranch()
	blocks := []model.TextBlock{
		{Text: "Insurance contract signed 2024-01-01 with standard terms covering inpatient care and benefit schedules as described in the annex attached to the agreement. Patient admitted 2023-03-10."},
	}

	ref, ok := b.ReferenceFromAnchors(blocks)
	if !ok {
		t.Fatal("Expected policy date detected")
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !ref.Equal(want) {
		t.Errorf("Expected %v, got %v", want, ref)
	}
}

func TestRuleBranch_ReferenceFromAnchors_None(t *testing.T) {
	b := newRuleBranch()
	blocks := []model.TextBlock{{Text: "Admitted 2023-03-10."}}

	if _, ok := b.ReferenceFromAnchors(blocks); ok {
		t.Error("Expected no reference without a policy anchor")
	}
}

func TestEntityFromContext(t *testing.T) {
	a := model.Anchor{
		RawText: "2023-03-10",
		Context: "Patient admitted 2023-03-10 to Seoul National University Hospital, stable",
	}

	got := entityFromContext(a)
	if got == "" {
		t.Fatal("Expected non-empty entity")
	}
	if !strings.Contains(got, "Seoul National University Hospital") {
		t.Errorf("Expected facility name in entity clause, got %q", got)
	}
	if strings.Contains(got, "2023") {
		t.Errorf("Expected date span stripped from entity, got %q", got)
	}
}

func TestEventTypeFor(t *testing.T) {
	tests := []struct {
		category model.AnchorCategory
		want     model.EventType
		ok       bool
	}{
		{model.CategoryAdmission, model.EventAdmission, true},
		{model.CategoryDischarge, model.EventDischarge, true},
		{model.CategorySurgery, model.EventSurgery, true},
		{model.CategoryTest, model.EventTest, true},
		{model.CategoryUnknown, model.EventVisit, true},
		{model.CategoryPolicy, "", false},
	}

	for _, tt := range tests {
		got, ok := eventTypeFor(tt.category)
		if got != tt.want || ok != tt.ok {
			t.Errorf("eventTypeFor(%s) = (%s, %v), want (%s, %v)", tt.category, got, ok, tt.want, tt.ok)
		}
	}
}
