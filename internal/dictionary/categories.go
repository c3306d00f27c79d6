package dictionary

import (
	"sort"

	"github.com/tinoosan/pocketledger/internal/slug"
)

// CategoryDef describes a suggested spending category.
type CategoryDef struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	Group string `json:"group"`
}

var curated = []CategoryDef{
	{Code: "groceries", Label: "Groceries", Group: "essentials"},
	{Code: "rent", Label: "Rent", Group: "essentials"},
	{Code: "utilities", Label: "Utilities", Group: "essentials"},
	{Code: "bills", Label: "Bills", Group: "essentials"},
	{Code: "transport", Label: "Transport", Group: "essentials"},
	{Code: "coffee", Label: "Coffee", Group: "lifestyle"},
	{Code: "eating_out", Label: "Eating Out", Group: "lifestyle"},
	{Code: "entertainment", Label: "Entertainment", Group: "lifestyle"},
	{Code: "shopping", Label: "Shopping", Group: "lifestyle"},
	{Code: "travel", Label: "Travel", Group: "lifestyle"},
	{Code: "personal_care", Label: "Personal Care", Group: "lifestyle"},
	{Code: "savings", Label: "Savings", Group: "goals"},
	{Code: "charity", Label: "Charity", Group: "goals"},
	{Code: "gifts", Label: "Gifts", Group: "goals"},
	{Code: "family", Label: "Family", Group: "goals"},
	{Code: "general", Label: "General", Group: "other"},
}

// Categories returns the suggested categories, optionally filtered by group, ordered by code.
func Categories(group string) []CategoryDef {
	out := make([]CategoryDef, 0, len(curated))
	for _, c := range curated {
		if group != "" && c.Group != group {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Label returns the display label of the curated category a user label
// matches, comparing slugs so "Eating Out" and "eating_out" both match.
// Labels outside the curated list return "".
func Label(category string) string {
	code := slug.Slugify(category)
	if !slug.IsSlug(code) {
		return ""
	}
	for _, c := range curated {
		if c.Code == code {
			return c.Label
		}
	}
	return ""
}
