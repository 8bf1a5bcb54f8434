package model

import (
	"fmt"
	"strings"
)

// Ref identifies one offer of one buyer inside the criteria index.
type Ref struct {
	BuyerID string
	OfferID string
}

const refSeparator = "-"

var (
	refEscaper   = strings.NewReplacer("%", "%25", "-", "%2D")
	refUnescaper = strings.NewReplacer("%2D", "-", "%2d", "-", "%25", "%")
)

// String encodes the reference as an index set member. The buyer id is
// escaped so the first "-" always separates buyer from offer.
func (r Ref) String() string {
	return refEscaper.Replace(r.BuyerID) + refSeparator + r.OfferID
}

// ParseRef decodes an index set member produced by Ref.String.
func ParseRef(member string) (Ref, error) {
	buyer, offer, ok := strings.Cut(member, refSeparator)
	if !ok || buyer == "" || offer == "" {
		return Ref{}, fmt.Errorf("malformed reference %q", member)
	}
	return Ref{BuyerID: refUnescaper.Replace(buyer), OfferID: offer}, nil
}

// RepairJob asks the repair workers to drop a stale reference from the given index keys.
type RepairJob struct {
	Ref  Ref
	Keys []string
}
