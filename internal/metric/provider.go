// Package metric is the boundary to the CRM metric computation. Goals only ever
// ask "what is the value of this metric for this scope over this window".
package metric

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	RevenueClosed    Type = "REVENUE_CLOSED"
	DealsWon         Type = "DEALS_WON"
	ActivitiesLogged Type = "ACTIVITIES_LOGGED"
	LeadsCreated     Type = "LEADS_CREATED"
)

var AllTypes = []Type{
	RevenueClosed,
	DealsWon,
	ActivitiesLogged,
	LeadsCreated,
}

func (t Type) IsValid() bool {
	for _, v := range AllTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Scope selects whose activity is measured. Exactly one of the ids is set.
type Scope struct {
	OwnerID *uuid.UUID `json:"owner_id,omitempty"`
	TeamID  *uuid.UUID `json:"team_id,omitempty"`
}

func (s Scope) String() string {
	switch {
	case s.OwnerID != nil:
		return "owner:" + s.OwnerID.String()
	case s.TeamID != nil:
		return "team:" + s.TeamID.String()
	default:
		return "none"
	}
}

// Range is an inclusive date window.
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type Provider interface {
	GetValue(ctx context.Context, metricType Type, scope Scope, window Range) (decimal.Decimal, error)
}
