package model

import "time"

// Field represents a bookable sports facility.  Fields are created and
// edited by administrators and cannot be deleted while reservations
// reference them.  This struct corresponds to a row in the `fields` table.
//
// Fields:
//
//	ID           – primary key identifier.
//	Name         – display name of the field.
//	Description  – optional free-form description.
//	Location     – address or venue label.
//	PricePerHour – hourly rate in whole currency units.
//	ImageURL     – public path of the uploaded field image (nullable).
//	Facilities   – unordered set of facility tags (AC, Parking, ...).
//	OpenHour     – first bookable hour of the day (0-23).
//	CloseHour    – hour at which the last slot ends (1-24).
//	IsActive     – inactive fields are hidden from customers.
//	CreatedAt    – creation timestamp.
//	UpdatedAt    – last update timestamp.
type Field struct {
	ID           uint64    // fields.id
	Name         string    // fields.name
	Description  *string   // fields.description (nullable)
	Location     string    // fields.location
	PricePerHour int64     // fields.price_per_hour
	ImageURL     *string   // fields.image_url (nullable)
	Facilities   []string  // fields.facilities (JSON array)
	OpenHour     int       // fields.open_hour
	CloseHour    int       // fields.close_hour
	IsActive     bool      // fields.is_active
	CreatedAt    time.Time // fields.created_at
	UpdatedAt    time.Time // fields.updated_at
}

// Default operating hours applied when an administrator does not provide
// them explicitly.
const (
	DefaultOpenHour  = 8
	DefaultCloseHour = 22
)

// SlotCount returns the number of hourly slots the field offers per day.
func (f Field) SlotCount() int {
	if f.CloseHour <= f.OpenHour {
		return 0
	}
	return f.CloseHour - f.OpenHour
}
