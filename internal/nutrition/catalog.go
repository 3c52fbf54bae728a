package nutrition

import (
	"encoding/json"
	"fmt"
)

// Disease is a medical condition that shifts the daily calorie target.
type Disease struct {
	ID                  int     `json:"id"`
	Name                string  `json:"name"`
	Description         string  `json:"description,omitempty"`
	DietaryRestrictions string  `json:"dietary_restrictions,omitempty"`
	CalorieAdjustment   float64 `json:"calorie_adjustment"`
}

// Catalog resolves disease IDs.
type Catalog interface {
	Disease(id int) (Disease, bool)
}

// StaticCatalog is an in-memory catalog keyed by disease ID.
type StaticCatalog map[int]Disease

// NewStaticCatalog indexes diseases by ID. Later duplicates win.
func NewStaticCatalog(diseases []Disease) StaticCatalog {
	c := make(StaticCatalog, len(diseases))
	for _, d := range diseases {
		c[d.ID] = d
	}
	return c
}

// Disease implements Catalog.
func (c StaticCatalog) Disease(id int) (Disease, bool) {
	d, ok := c[id]
	return d, ok
}

// DemoDiseases is the catalog the backend's demo endpoint describes, used when
// the backend list is unavailable.
func DemoDiseases() []Disease {
	return []Disease{
		{ID: 1, Name: "Diabetes Type 2", CalorieAdjustment: -200,
			Description: "Requires reduced calorie intake and controlled carbohydrates"},
		{ID: 2, Name: "Hyperthyroidism", CalorieAdjustment: 300,
			Description: "Increased metabolism requires higher calorie intake"},
		{ID: 3, Name: "Hypertension", CalorieAdjustment: -100,
			Description: "Moderate calorie reduction with low sodium diet"},
	}
}

type diseaseList struct {
	Diseases []Disease `json:"diseases"`
}

// ParseCatalog decodes the backend's {"diseases":[...]} list.
func ParseCatalog(raw json.RawMessage) (StaticCatalog, error) {
	var list diseaseList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode disease list: %w", err)
	}
	return NewStaticCatalog(list.Diseases), nil
}
