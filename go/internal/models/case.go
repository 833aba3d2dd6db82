package models

// Case is a purchasable or free bundle of prize items.
type Case struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	ImageURL    string `json:"image_url,omitempty"`
	IsFree      bool   `json:"is_free"`
}

// CaseItem is one entry of a case's prize pool.
type CaseItem struct {
	ID         int64   `json:"id"`
	DropChance float64 `json:"drop_chance"`
	Gift       Gift    `json:"gift"`
}

// OpenResult is the authoritative outcome of opening a case.
type OpenResult struct {
	OpeningID int64 `json:"opening_id"`
	Gift      Gift  `json:"gift"`
	Balance   int64 `json:"balance"`
}

// FindByGift returns the item whose gift matches giftID.
func FindByGift(items []CaseItem, giftID int64) (CaseItem, bool) {
	for _, it := range items {
		if it.Gift.ID == giftID {
			return it, true
		}
	}
	return CaseItem{}, false
}
