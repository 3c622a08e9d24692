// Package catalog is the fixed table of placeable face parts. Five
// variants per category, addressed by stable part ids.
package catalog

import (
	"fmt"

	"github.com/yakan-hub/hukuwarai-hontai/fukuwarai"
)

// Part is one placeable asset.
type Part struct {
	ID       string             `json:"id"`
	Type     fukuwarai.PartType `json:"-"`
	TypeName string             `json:"part_type"`
	Name     string             `json:"name"`
	ImageURL string             `json:"image_url"`
}

const variantsPerType = 5

var parts []Part

var partsByID map[string]Part

func init() {
	partsByID = make(map[string]Part)
	for _, pt := range fukuwarai.AllPartTypes() {
		for i := 1; i <= variantsPerType; i++ {
			p := Part{
				ID:       fmt.Sprintf("%s-%d", pt, i),
				Type:     pt,
				TypeName: pt.String(),
				Name:     fmt.Sprintf("%s %d", pt, i),
				ImageURL: fmt.Sprintf("/parts/%s/%s%d.png", pt, pt, i),
			}
			parts = append(parts, p)
			partsByID[p.ID] = p
		}
	}
}

// All returns every part in category order.
func All() []Part {
	out := make([]Part, len(parts))
	copy(out, parts)
	return out
}

// ByType returns the variants of one category.
func ByType(pt fukuwarai.PartType) []Part {
	var out []Part
	for _, p := range parts {
		if p.Type == pt {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that partID exists and belongs to the claimed
// category.
func Validate(partID string, pt fukuwarai.PartType) error {
	p, ok := partsByID[partID]
	if !ok {
		return fukuwarai.ErrInvalidCandidate("unknown part id " + partID)
	}
	if p.Type != pt {
		return fukuwarai.ErrInvalidCandidate(
			fmt.Sprintf("part %s belongs to %s, not %s", partID, p.TypeName, pt))
	}
	return nil
}

// Templates returns the built-in face outline templates seeded into
// the store at startup.
func Templates() []fukuwarai.Template {
	return []fukuwarai.Template{
		{ID: "face-1", Name: "Face Outline 1", ImageURL: "/parts/blank face outline/sample-face1.png"},
		{ID: "face-2", Name: "Face Outline 2", ImageURL: "/parts/blank face outline/sample-face2.png"},
		{ID: "face-3", Name: "Face Outline 3", ImageURL: "/parts/blank face outline/sample-face3.png"},
	}
}
