// Package deck resolves a session's deck selector into the ordered list of
// cards participants may vote with.
package deck

import (
	"math"
	"strconv"
	"strings"
)

type Kind string

const (
	Standard          Kind = "standard"
	Short             Kind = "short"
	Fibonacci         Kind = "fibonacci"
	ModifiedFibonacci Kind = "modified_fibonacci"
	TShirts           Kind = "tshirts"
	PowersOf2         Kind = "powers_of_2"
	Custom            Kind = "custom"
)

// Kinds lists every selector accepted when creating a session.
var Kinds = []Kind{Standard, Short, Fibonacci, ModifiedFibonacci, TShirts, PowersOf2, Custom}

// Sentinel card ids appended to every non-empty deck.
const (
	Unknown = "unknown"
	Coffee  = "coffee"
)

// Card is one selectable deck entry. Numeric is nil for symbolic cards.
type Card struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Numeric *float64 `json:"numericValue,omitempty"`
}

func (c Card) Value() (float64, bool) {
	if c.Numeric == nil {
		return 0, false
	}
	return *c.Numeric, true
}

func sentinels() []Card {
	return []Card{
		{ID: Unknown, Label: "?"},
		{ID: Coffee, Label: "☕"},
	}
}

func numeric(values ...float64) []Card {
	cards := make([]Card, 0, len(values)+2)
	for _, v := range values {
		cards = append(cards, numericCard(v, formatNumber(v)))
	}
	return append(cards, sentinels()...)
}

func numericCard(v float64, label string) Card {
	n := v
	return Card{ID: formatNumber(v), Label: label, Numeric: &n}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Resolve returns the ordered cards for kind. Unrecognized kinds fall back to
// the standard deck. A custom deck with an empty spec has no cards at all.
func Resolve(kind Kind, customSpec string) []Card {
	switch kind {
	case Short:
		return numeric(1, 2, 3, 4, 5)
	case Fibonacci:
		return numeric(0, 1, 2, 3, 5, 8, 13, 21, 34, 55, 89)
	case ModifiedFibonacci:
		cards := []Card{
			numericCard(0, "0"),
			numericCard(0.5, "½"),
		}
		for _, v := range []float64{1, 2, 3, 5, 8, 13, 20, 40, 100} {
			cards = append(cards, numericCard(v, formatNumber(v)))
		}
		return append(cards, sentinels()...)
	case TShirts:
		cards := []Card{
			{ID: "XS", Label: "XS"},
			{ID: "S", Label: "S"},
			{ID: "M", Label: "M"},
			{ID: "L", Label: "L"},
			{ID: "XL", Label: "XL"},
		}
		return append(cards, sentinels()...)
	case PowersOf2:
		return numeric(0, 1, 2, 4, 8, 16, 32, 64)
	case Custom:
		return resolveCustom(customSpec)
	default:
		return numeric(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	}
}

func resolveCustom(spec string) []Card {
	entries := SplitCustom(spec)
	if len(entries) == 0 {
		return []Card{}
	}
	seen := make(map[string]bool, len(entries))
	cards := make([]Card, 0, len(entries)+2)
	for _, id := range entries {
		if seen[id] {
			continue
		}
		seen[id] = true
		card := Card{ID: id, Label: id}
		if v, err := strconv.ParseFloat(id, 64); err == nil && !math.IsInf(v, 0) && !math.IsNaN(v) {
			card.Numeric = &v
		}
		cards = append(cards, card)
	}
	return append(cards, sentinels()...)
}

// SplitCustom splits a custom spec on commas, trimming whitespace and
// dropping empty entries. Order and duplicates are preserved.
func SplitCustom(spec string) []string {
	var out []string
	for _, part := range strings.Split(spec, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IDs returns the card ids in deck order.
func IDs(cards []Card) []string {
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	return ids
}

// Lookup finds the card with the given id.
func Lookup(cards []Card, id string) (Card, bool) {
	for _, c := range cards {
		if c.ID == id {
			return c, true
		}
	}
	return Card{}, false
}

// AverageEnabled reports whether a numeric average means anything for kind.
func AverageEnabled(kind Kind) bool {
	return kind != TShirts
}

// Known reports whether kind is one of the selectors in Kinds.
func Known(kind Kind) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
