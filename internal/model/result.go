// Package model defines the domain types shared across the retrieval loop:
// ranked results, sessions, citations, and stream events.
package model

import (
	"fmt"
	"time"
)

// ContentKind discriminates the payload of a RankedResult.
type ContentKind string

const (
	KindBill            ContentKind = "bill"
	KindExecutiveAction ContentKind = "executive_action"
)

// Valid reports whether k is a known content kind.
func (k ContentKind) Valid() bool {
	switch k {
	case KindBill, KindExecutiveAction:
		return true
	}
	return false
}

// ComponentScores holds the four ranking signals, each in [0,1].
// The backend computes all four; the merger and citation builder only
// read them.
type ComponentScores struct {
	Semantic  float64 `json:"semantic"`
	Keyword   float64 `json:"keyword"`
	Recency   float64 `json:"recency"`
	Authority float64 `json:"authority"`
}

// BillDetail carries the bill-specific fields of a ranked result.
type BillDetail struct {
	BillNumber   string     `json:"bill_number"`
	Chamber      string     `json:"chamber"`
	Status       string     `json:"status"`
	Sponsor      string     `json:"sponsor,omitempty"`
	IntroducedAt *time.Time `json:"introduced_at,omitempty"`
	LastActionAt *time.Time `json:"last_action_at,omitempty"`
}

// ExecutiveActionDetail carries the executive-action-specific fields.
type ExecutiveActionDetail struct {
	OrderNumber    string     `json:"order_number"`
	Administration string     `json:"administration"`
	Status         string     `json:"status"`
	SignedAt       *time.Time `json:"signed_at,omitempty"`
}

// RankedResult is one scored candidate from the ranked-search backend.
// It is a closed union: exactly one of Bill or ExecutiveAction is set,
// matching Kind.
type RankedResult struct {
	ID        string          `json:"id"`
	Kind      ContentKind     `json:"kind"`
	Title     string          `json:"title"`
	Excerpt   string          `json:"excerpt"`
	Scores    ComponentScores `json:"scores"`
	Composite float64         `json:"composite"`
	Category  string          `json:"category,omitempty"`

	Bill            *BillDetail            `json:"bill,omitempty"`
	ExecutiveAction *ExecutiveActionDetail `json:"executive_action,omitempty"`
}

// Validate checks the kind/payload pairing and score ranges.
func (r RankedResult) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("result missing id")
	}
	switch r.Kind {
	case KindBill:
		if r.Bill == nil || r.ExecutiveAction != nil {
			return fmt.Errorf("result %s: kind bill requires bill payload only", r.ID)
		}
	case KindExecutiveAction:
		if r.ExecutiveAction == nil || r.Bill != nil {
			return fmt.Errorf("result %s: kind executive_action requires executive_action payload only", r.ID)
		}
	default:
		return fmt.Errorf("result %s: unknown kind %q", r.ID, r.Kind)
	}
	for name, s := range map[string]float64{
		"semantic":  r.Scores.Semantic,
		"keyword":   r.Scores.Keyword,
		"recency":   r.Scores.Recency,
		"authority": r.Scores.Authority,
		"composite": r.Composite,
	} {
		if s < 0 || s > 1 {
			return fmt.Errorf("result %s: %s score %f out of [0,1]", r.ID, name, s)
		}
	}
	return nil
}

// EffectiveDate returns the date used for recency tie-breaking: the most
// recent action for a bill, the signing date for an executive action.
// Zero time when the source metadata carries no date.
func (r RankedResult) EffectiveDate() time.Time {
	switch r.Kind {
	case KindBill:
		if r.Bill == nil {
			return time.Time{}
		}
		if r.Bill.LastActionAt != nil {
			return *r.Bill.LastActionAt
		}
		if r.Bill.IntroducedAt != nil {
			return *r.Bill.IntroducedAt
		}
	case KindExecutiveAction:
		if r.ExecutiveAction == nil || r.ExecutiveAction.SignedAt == nil {
			return time.Time{}
		}
		return *r.ExecutiveAction.SignedAt
	}
	return time.Time{}
}

// Label returns a short human-readable identifier for the result, e.g.
// "HB 1234" or "EO 14067", falling back to the title.
func (r RankedResult) Label() string {
	switch r.Kind {
	case KindBill:
		if r.Bill != nil && r.Bill.BillNumber != "" {
			return r.Bill.BillNumber
		}
	case KindExecutiveAction:
		if r.ExecutiveAction != nil && r.ExecutiveAction.OrderNumber != "" {
			return "EO " + r.ExecutiveAction.OrderNumber
		}
	}
	return r.Title
}
