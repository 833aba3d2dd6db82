package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// AnimatedGiftCount is the number of distinct gift animations in the asset store.
const AnimatedGiftCount = 120

// Rarity is the rarity class shown as a tile background.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// GiftValue is the display value of a gift. The catalog sends either a number
// or a range such as "1-10".
type GiftValue string

func (v *GiftValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = GiftValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = GiftValue(n.String())
	return nil
}

// Int returns the value as an integer, or 0 when it is a range.
func (v GiftValue) Int() int {
	n, err := strconv.Atoi(string(v))
	if err != nil {
		return 0
	}
	return n
}

// Gift is a prize item.
type Gift struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Rarity     Rarity    `json:"rarity"`
	Value      GiftValue `json:"value"`
	ImageURL   string    `json:"image_url,omitempty"`
	GiftNumber int       `json:"gift_number,omitempty"`
	IsStars    bool      `json:"is_stars,omitempty"`
}

// AssetKey returns the animation key for the gift: the explicit gift number
// when present, otherwise the id folded onto the animated range.
func (g Gift) AssetKey() int {
	if g.GiftNumber > 0 {
		return g.GiftNumber
	}
	if g.ID <= 0 {
		return 1
	}
	return int((g.ID-1)%AnimatedGiftCount) + 1
}

// RarityOrDefault returns the rarity, falling back to common.
func (g Gift) RarityOrDefault() Rarity {
	if g.Rarity == "" {
		return RarityCommon
	}
	return g.Rarity
}
