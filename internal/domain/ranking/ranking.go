// Package ranking picks the winning offer among resolved candidates.
package ranking

import (
	"github.com/okian/adroute/internal/domain/model"
)

// Candidate is one matched offer of a fetched buyer.
type Candidate struct {
	BuyerID  string
	Position int
	Offer    model.Offer
}

// Flatten collects the offers of buyers whose reference is in wanted.
// Buyers are walked in the order given and offers by position, so callers
// control tie order by sorting buyers first.
func Flatten(buyers []*model.Buyer, wanted map[model.Ref]struct{}) []Candidate {
	var out []Candidate
	for _, b := range buyers {
		if b == nil {
			continue
		}
		for i, o := range b.Offers {
			ref := model.Ref{BuyerID: b.ID, OfferID: o.ID}
			if _, ok := wanted[ref]; !ok {
				continue
			}
			out = append(out, Candidate{BuyerID: b.ID, Position: i, Offer: o})
		}
	}
	return out
}

// Select returns the candidate with the highest value. Ties go to the
// earliest candidate. ok is false when cands is empty.
func Select(cands []Candidate) (best Candidate, ok bool) {
	for i, c := range cands {
		if i == 0 || c.Offer.Value > best.Offer.Value {
			best = c
		}
	}
	return best, len(cands) > 0
}
