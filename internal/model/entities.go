package model

import (
	"crypto/sha256"
	"fmt"
	"math"
	"time"
)

// Plan is a normalized procurement planning record.
type Plan struct {
	ID          string
	Name        string
	CustomerBIN string
	Price       *float64
	MethodID    *int64
}

// Lot is a normalized tender lot record. PlanID may be empty when the
// upstream reference is absent.
type Lot struct {
	StartDate   *time.Time
	Amount      *float64
	MethodID    *int64
	ID          string
	PlanID      string
	Number      string
	Title       string
	CustomerBIN string
}

// Contract is a normalized awarded contract record. LotID may be empty or
// point to a lot missing from the archive.
type Contract struct {
	AcceptDate  *time.Time
	Sum         *float64
	PaidSum     *float64
	MethodID    *int64
	ID          string
	LotID       string
	LotNumber   string
	ProviderBIN string
	CustomerBIN string
}

// JoinKind records how an upstream entity was resolved for a fact record.
type JoinKind string

const (
	// JoinPrimary means the primary foreign key matched.
	JoinPrimary JoinKind = "primary"
	// JoinFallback means the composite fallback key matched.
	JoinFallback JoinKind = "fallback"
	// JoinNone means neither key produced a match.
	JoinNone JoinKind = "none"
)

// FactRecord is the fully reconciled, feature-enriched row for one contract.
// Lot and Plan fields are nil when the corresponding join found no match.
type FactRecord struct {
	Contract Contract
	Lot      *Lot
	Plan     *Plan

	LotJoin  JoinKind
	PlanJoin JoinKind

	// Derived columns, populated by the feature engine.
	PriceZ        *float64
	PriceFlag     bool
	SingleFlag    bool
	RepeatFlag    bool
	SplitFlag     bool
	UnderpaidFlag bool
	RiskScore     float64
}

// CompositeKey builds the deterministic fallback join key from a lot number,
// a customer BIN and a monetary sum rounded to the nearest whole unit.
func CompositeKey(lotNumber, customerBIN string, sum float64) string {
	data := fmt.Sprintf("%s|%s|%d", lotNumber, customerBIN, int64(math.Round(sum)))
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)[:16]
}
