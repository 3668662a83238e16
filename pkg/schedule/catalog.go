package schedule

import "fmt"

// ServiceType is a bookable treatment. Its duration drives the slot grid.
type ServiceType struct {
	ID              string `json:"id"`
	Label           string `json:"label"`
	DurationMinutes int    `json:"durationMinutes"`
	Hours           Hours  `json:"hours"`
}

// Catalog is the static list of services offered.
type Catalog []ServiceType

// DefaultCatalog is used when no catalog is configured.
var DefaultCatalog = Catalog{
	{ID: "consultation", Label: "Initial consultation", DurationMinutes: 30, Hours: Hours{OpenHour: 8, CloseHour: 15, StepMinutes: 30}},
	{ID: "massage", Label: "Therapeutic massage", DurationMinutes: 60, Hours: DefaultHours},
	{ID: "facial", Label: "Facial treatment", DurationMinutes: 45, Hours: Hours{OpenHour: 8, CloseHour: 15, StepMinutes: 15}},
	{ID: "reflexology", Label: "Reflexology session", DurationMinutes: 90, Hours: Hours{OpenHour: 8, CloseHour: 15, StepMinutes: 30}},
}

// Find looks a service up by ID.
func (c Catalog) Find(id string) (ServiceType, error) {
	for _, s := range c {
		if s.ID == id {
			return s, nil
		}
	}
	return ServiceType{}, fmt.Errorf("schedule: unknown service %q", id)
}

// WithHours returns a copy of the catalog opening and closing at h. Each service
// keeps its own step.
func (c Catalog) WithHours(h Hours) Catalog {
	out := make(Catalog, len(c))
	for i, s := range c {
		s.Hours.OpenHour = h.OpenHour
		s.Hours.CloseHour = h.CloseHour
		out[i] = s
	}
	return out
}

// Slots generates the grid of the service on day.
func (s ServiceType) Slots(day Date) []TimeSlot {
	return GenerateSlots(day, s.DurationMinutes, s.Hours)
}
