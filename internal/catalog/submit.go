package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erazemk/sosed/internal/imaging"
	"github.com/erazemk/sosed/internal/model"
)

// DateLayout is the format of the availability date submitted by forms.
const DateLayout = "2006-01-02"

// Draft is an item as entered in the submission form.
type Draft struct {
	Title          string
	Description    string
	Category       string
	Location       string
	AvailableUntil *time.Time
	Image          *imaging.Result
}

// ValidationError reports every invalid field of a draft.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid item: " + strings.Join(parts, ", ")
}

// Validate checks the draft against now and returns a *ValidationError
// listing every problem, or nil.
func (d *Draft) Validate(now time.Time) error {
	fields := map[string]string{}
	if strings.TrimSpace(d.Title) == "" {
		fields["title"] = "Title is required"
	}
	if strings.TrimSpace(d.Description) == "" {
		fields["description"] = "Description is required"
	}
	if !model.ValidCategory(d.Category) {
		fields["category"] = "Choose a category"
	}
	if strings.TrimSpace(d.Location) == "" {
		fields["location"] = "Location is required"
	}
	if d.AvailableUntil != nil && d.AvailableUntil.Before(now) {
		fields["available_until"] = "Date cannot be in the past"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Submit validates the draft and creates an item owned by ownerID.
func (c *Catalog) Submit(ctx context.Context, ownerID int64, d Draft) (int64, error) {
	now := c.now()
	if err := d.Validate(now); err != nil {
		return 0, err
	}

	var image []byte
	var mime string
	if d.Image != nil {
		image, mime = d.Image.Data, d.Image.MIME
	}

	id, err := c.Repo.CreateItem(ctx, &model.Item{
		Title:          strings.TrimSpace(d.Title),
		Description:    strings.TrimSpace(d.Description),
		Category:       d.Category,
		Location:       strings.TrimSpace(d.Location),
		AvailableUntil: d.AvailableUntil,
		CreatedAt:      now,
		Owner:          model.UserRef{ID: ownerID},
	}, image, mime)
	if err != nil {
		return 0, fmt.Errorf("creating item: %w", err)
	}
	return id, nil
}

// ParseAvailableUntil parses a form date. An empty value means no limit.
// The date covers the whole day, so today is always acceptable.
func ParseAvailableUntil(value string, loc *time.Location) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	day, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return nil, fmt.Errorf("parsing date %q: %w", value, err)
	}
	end := day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return &end, nil
}
