// Package model contains domain models passed between layers.
package model

import (
	"strconv"
)

// Dimension is one targeting axis of an offer.
type Dimension string

// Targeting dimensions.
const (
	DimensionDevice Dimension = "device"
	DimensionHour   Dimension = "hour"
	DimensionDay    Dimension = "day"
	DimensionState  Dimension = "state"
)

// Dimensions returns every targeting dimension in index key order.
func Dimensions() []Dimension {
	return []Dimension{DimensionDevice, DimensionHour, DimensionDay, DimensionState}
}

// Buyer is an advertiser account and its offers.
// Fields mirror the OpenAPI schema for POST /buyers.
type Buyer struct {
	ID     string  `json:"id" validate:"required"`
	Offers []Offer `json:"offers" validate:"required,dive"`
}

// Offer is a targetable bid. ID is assigned at ingestion and never accepted from callers.
type Offer struct {
	ID       string    `json:"id,omitempty" validate:"-"`
	Value    float64   `json:"value" validate:"required"`
	Location string    `json:"location" validate:"required"`
	Criteria *Criteria `json:"criteria" validate:"required"`
}

// Criteria lists the accepted values per dimension. A nil slice means the
// dimension was missing; an empty slice is a valid "matches nothing" set.
// Hours and days outside 0-23 and 0-6 are stored as given and never match.
type Criteria struct {
	Device []string `json:"device" validate:"required"`
	Hour   []int    `json:"hour" validate:"required"`
	Day    []int    `json:"day" validate:"required"`
	State  []string `json:"state" validate:"required"`
}

// Values returns the criteria of d rendered as index values.
func (c *Criteria) Values(d Dimension) []string {
	if c == nil {
		return nil
	}
	switch d {
	case DimensionDevice:
		return append([]string(nil), c.Device...)
	case DimensionState:
		return append([]string(nil), c.State...)
	case DimensionHour:
		return itoaAll(c.Hour)
	case DimensionDay:
		return itoaAll(c.Day)
	}
	return nil
}

func itoaAll(in []int) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strconv.Itoa(v)
	}
	return out
}

// OfferID derives the positional identifier of the i-th offer of a buyer.
// It is stable only while the buyer's offers keep their order.
func OfferID(buyerID string, position int) string {
	return buyerID + ":" + strconv.Itoa(position)
}

// AssignOfferIDs overwrites every offer id with its positional identifier.
func (b *Buyer) AssignOfferIDs() {
	for i := range b.Offers {
		b.Offers[i].ID = OfferID(b.ID, i)
	}
}

// Refs returns the composite reference of every offer, in offer order.
func (b *Buyer) Refs() []Ref {
	refs := make([]Ref, len(b.Offers))
	for i := range b.Offers {
		refs[i] = Ref{BuyerID: b.ID, OfferID: b.Offers[i].ID}
	}
	return refs
}
