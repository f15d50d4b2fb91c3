package catalog

import (
	"errors"
	"strings"
	"testing"
)

func TestLookupKnownTypes(t *testing.T) {
	for _, jt := range []JobType{BusinessPlan, MarketingPlan} {
		e, err := Lookup(jt)
		if err != nil {
			t.Fatalf("lookup %s: %v", jt, err)
		}
		if e.Total() == 0 {
			t.Fatalf("expected sections for %s", jt)
		}
		for i, s := range e.Sections {
			if s.Order != i+1 {
				t.Fatalf("%s section %d has order %d", jt, i, s.Order)
			}
			if s.Name == "" || s.Title == "" {
				t.Fatalf("%s section %d missing name or title", jt, i)
			}
		}
	}
}

func TestLookupUnknownType(t *testing.T) {
	_, err := Lookup("PITCH_DECK")
	if !errors.Is(err, ErrUnknownJobType) {
		t.Fatalf("expected ErrUnknownJobType, got %v", err)
	}
	if _, err := ParseJobType(" pitch_deck "); !errors.Is(err, ErrUnknownJobType) {
		t.Fatalf("expected ErrUnknownJobType from ParseJobType, got %v", err)
	}
	jt, err := ParseJobType(" business_plan ")
	if err != nil || jt != BusinessPlan {
		t.Fatalf("expected BUSINESS_PLAN, got %q %v", jt, err)
	}
}

func TestRenderBusinessPlanSections(t *testing.T) {
	e, _ := Lookup(BusinessPlan)
	in := &BusinessPlanInput{
		CompanyName:        "Acme Bakery",
		Industry:           "food service",
		TargetMarket:       "urban commuters",
		ProductDescription: "fresh breakfast pastries",
		FundingGoal:        "$250k",
	}
	for i := range e.Sections {
		out, err := e.Render(i, in)
		if err != nil {
			t.Fatalf("render %d: %v", i, err)
		}
		if strings.Contains(out, "{{") || out == "" {
			t.Fatalf("section %d rendered badly: %q", i, out)
		}
	}
	first, _ := e.Render(0, in)
	if !strings.Contains(first, "Acme Bakery") || !strings.Contains(first, "$250k") {
		t.Fatalf("expected input values in first section: %q", first)
	}
}

func TestRenderWrongInputTypeFails(t *testing.T) {
	e, _ := Lookup(MarketingPlan)
	_, err := e.Render(0, &BusinessPlanInput{CompanyName: "x"})
	if !errors.Is(err, ErrTemplate) {
		t.Fatalf("expected ErrTemplate, got %v", err)
	}
	if _, err := e.Render(99, &MarketingPlanInput{}); !errors.Is(err, ErrTemplate) {
		t.Fatalf("expected ErrTemplate for out of range index, got %v", err)
	}
}

func TestContextRoundTrip(t *testing.T) {
	in, err := ParseInput(MarketingPlan, []byte(`{"brandName":"Glow","product":"skin care","audience":"gen z","channels":["tiktok","email"]}`))
	if err != nil {
		t.Fatalf("parse input: %v", err)
	}
	raw, err := EncodeContext(MarketingPlan, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"version":1,"jobType":"MARKETING_PLAN","input":{"brandName":"Glow","product":"skin care","audience":"gen z","channels":["tiktok","email"]}}`
	if string(raw) != want {
		t.Fatalf("unexpected envelope\nwant %s\ngot  %s", want, raw)
	}

	decoded, err := DecodeContext(MarketingPlan, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	again, _ := EncodeContext(MarketingPlan, decoded)
	if string(again) != string(raw) {
		t.Fatalf("round trip changed bytes: %s", again)
	}

	// key order as a JSONB column might return it
	reordered := []byte(`{"input": {"product": "skin care", "audience": "gen z", "channels": ["tiktok", "email"], "brandName": "Glow"}, "jobType": "MARKETING_PLAN", "version": 1}`)
	canon, _, err := Canonical(MarketingPlan, reordered)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if string(canon) != want {
		t.Fatalf("canonical mismatch: %s", canon)
	}
}

func TestParseInputRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{"companyName":"a","industry":"b","targetMarket":"c","productDescription":"d","ceo":"e"}`,
		"missing field": `{"companyName":"a","industry":"b"}`,
		"not json":      `company=a`,
		"empty":         ``,
		"trailing":      `{"companyName":"a","industry":"b","targetMarket":"c","productDescription":"d"} {}`,
	}
	for name, raw := range cases {
		if _, err := ParseInput(BusinessPlan, []byte(raw)); !errors.Is(err, ErrInvalidContext) {
			t.Fatalf("%s: expected ErrInvalidContext, got %v", name, err)
		}
	}
}

func TestDecodeContextChecksEnvelope(t *testing.T) {
	if _, err := DecodeContext(BusinessPlan, []byte(`{"version":2,"jobType":"BUSINESS_PLAN","input":{}}`)); !errors.Is(err, ErrInvalidContext) {
		t.Fatalf("expected version error, got %v", err)
	}
	if _, err := DecodeContext(BusinessPlan, []byte(`{"version":1,"jobType":"MARKETING_PLAN","input":{}}`)); !errors.Is(err, ErrInvalidContext) {
		t.Fatalf("expected job type mismatch, got %v", err)
	}
}

func TestNewEntrySortsAndValidates(t *testing.T) {
	e, err := NewEntry(BusinessPlan, "Plan", 2, []Section{
		{Name: "b", Title: "B", Order: 2, InstructionTemplate: "second {{.CompanyName}}"},
		{Name: "a", Title: "A", Order: 1, InstructionTemplate: "first {{.CompanyName}}"},
	})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	if e.Sections[0].Name != "a" || e.Total() != 2 {
		t.Fatalf("sections not sorted: %+v", e.Sections)
	}
	got, err := e.Render(1, &BusinessPlanInput{CompanyName: "Acme"})
	if err != nil || got != "second Acme" {
		t.Fatalf("Render = %q, %v", got, err)
	}

	if _, err := NewEntry(BusinessPlan, "Plan", 1, nil); !errors.Is(err, ErrTemplate) {
		t.Fatalf("expected ErrTemplate for empty entry, got %v", err)
	}
	if _, err := NewEntry(BusinessPlan, "Plan", 1, []Section{{Name: "x", InstructionTemplate: "{{.Broken"}}); !errors.Is(err, ErrTemplate) {
		t.Fatalf("expected ErrTemplate for bad template, got %v", err)
	}
}
