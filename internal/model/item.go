package model

import "time"

// Item represents a shareable item listed by a member.
type Item struct {
	ID             int64      `db:"id" json:"id"`
	Title          string     `db:"title" json:"title"`
	Description    string     `db:"description" json:"description"`
	Category       string     `db:"category" json:"category"`
	Location       string     `db:"location" json:"location"`
	ImageURL       string     `db:"image_url" json:"image_url,omitempty"`
	AvailableUntil *time.Time `db:"available_until" json:"available_until,omitempty"`
	IsArchived     bool       `db:"is_archived" json:"is_archived"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	Owner          UserRef    `db:"owner" json:"owner"`
}

// ItemRef is the summary of an item embedded in requests.
type ItemRef struct {
	ID       int64  `db:"id" json:"id"`
	Title    string `db:"title" json:"title"`
	ImageURL string `db:"image_url" json:"image_url,omitempty"`
}

// Ref returns the summary of the item.
func (i *Item) Ref() ItemRef {
	return ItemRef{ID: i.ID, Title: i.Title, ImageURL: i.ImageURL}
}

// Item categories.
const (
	CategoryTools       = "Tools"
	CategoryKitchen     = "Kitchen"
	CategoryElectronics = "Electronics"
	CategoryBooks       = "Books"
	CategorySports      = "Sports"
	CategoryGarden      = "Garden"
	CategoryClothing    = "Clothing"
	CategoryFurniture   = "Furniture"
	CategorySkills      = "Skills"
	CategoryOther       = "Other"
)

// CategoryAll matches every category when filtering. It is never stored.
const CategoryAll = "All"

// Categories lists the fixed category set in display order.
var Categories = []string{
	CategoryTools,
	CategoryKitchen,
	CategoryElectronics,
	CategoryBooks,
	CategorySports,
	CategoryGarden,
	CategoryClothing,
	CategoryFurniture,
	CategorySkills,
	CategoryOther,
}

// ValidCategory reports whether c is one of the stored categories.
func ValidCategory(c string) bool {
	for _, cat := range Categories {
		if cat == c {
			return true
		}
	}
	return false
}

// MatchesCategory reports whether an item category passes the filter value.
// An empty filter and CategoryAll match everything.
func MatchesCategory(category, filter string) bool {
	return filter == "" || filter == CategoryAll || category == filter
}
