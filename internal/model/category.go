package model

// Category is an entry in the fixed item category catalog.
type Category struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Categories is the catalog of accepted item categories, in display order.
var Categories = []Category{
	{ID: "electronics", Label: "Electronics"},
	{ID: "student-id", Label: "Student ID"},
	{ID: "clothing", Label: "Clothing & Accessories"},
	{ID: "books", Label: "Books & Documents"},
	{ID: "keys", Label: "Keys"},
	{ID: "wallet", Label: "Wallet & Cards"},
	{ID: "bag", Label: "Bags & Luggage"},
	{ID: "jewelry", Label: "Jewelry"},
	{ID: "other", Label: "Other"},
}

// ValidCategory reports whether id names a catalog category.
func ValidCategory(id string) bool {
	for _, c := range Categories {
		if c.ID == id {
			return true
		}
	}
	return false
}
