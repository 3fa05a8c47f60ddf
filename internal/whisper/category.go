package whisper

import "strings"

// Category classifies a whisper post. The set is closed; anything a client
// sends outside it coerces to general rather than failing, so a stale or
// buggy front end can never make posting impossible.
type Category string

const (
	CategoryGeneral Category = "general"
	CategoryPraise  Category = "praise"
	CategoryConcern Category = "concern"
	CategoryIdea    Category = "idea"
	CategoryFun     Category = "fun"
)

// Categories lists every valid category in display order. Wall stats carry
// a count for each of these even when zero.
var Categories = []Category{CategoryGeneral, CategoryPraise, CategoryConcern, CategoryIdea, CategoryFun}

// MatchCategory strictly maps raw input to a category. Used for filters,
// where an unknown token must be dropped, not coerced.
func MatchCategory(raw string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(raw))) {
	case CategoryGeneral:
		return CategoryGeneral, true
	case CategoryPraise:
		return CategoryPraise, true
	case CategoryConcern:
		return CategoryConcern, true
	case CategoryIdea:
		return CategoryIdea, true
	case CategoryFun:
		return CategoryFun, true
	}
	return "", false
}

// ParseCategory always returns a valid category, coercing anything
// unrecognized to general.
func ParseCategory(raw string) Category {
	if c, ok := MatchCategory(raw); ok {
		return c
	}
	return CategoryGeneral
}

// ParseCategoryList parses a comma-separated filter. Unknown tokens are
// dropped; an empty result means "all categories".
func ParseCategoryList(raw string) []Category {
	var out []Category
	seen := make(map[Category]bool)
	for _, token := range strings.Split(raw, ",") {
		if c, ok := MatchCategory(token); ok && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
