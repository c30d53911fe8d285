package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ElementStaticText  = "static_text"
	ElementDynamicText = "dynamic_text"
	ElementImage       = "image"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

type Canvas struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Scale  float64 `json:"scale"`
}

type Background struct {
	AssetPath string `json:"asset_path"`
	Page      int    `json:"page"`
}

type ElementStyle struct {
	FontFamily string  `json:"font_family,omitempty"`
	FontSize   float64 `json:"font_size,omitempty"`
	FontWeight string  `json:"font_weight,omitempty"`
	Color      string  `json:"color,omitempty"`
	Align      string  `json:"align,omitempty"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type TemplateElement struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	Position    Position      `json:"position"`
	Style       *ElementStyle `json:"style,omitempty"`
	Content     string        `json:"content,omitempty"`
	Placeholder string        `json:"placeholder,omitempty"`
	SourceAsset string        `json:"source_asset,omitempty"`
	Dimensions  *Dimensions   `json:"dimensions,omitempty"`
	Layer       int           `json:"layer"`
	Optional    bool          `json:"optional,omitempty"`
}

type TemplateLayout struct {
	Canvas     Canvas            `json:"canvas"`
	Background Background        `json:"background"`
	Elements   []TemplateElement `json:"elements"`
}

func (l TemplateLayout) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *TemplateLayout) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = TemplateLayout{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into TemplateLayout", value)
	}
}

// Validate enforces the structural contract the editor promises: positive
// canvas, a real background page, well-formed styles and unique element ids.
func (l TemplateLayout) Validate() error {
	if l.Canvas.Width <= 0 || l.Canvas.Height <= 0 {
		return errors.New("canvas dimensions must be positive")
	}
	if l.Background.AssetPath == "" {
		return errors.New("background asset path is required")
	}
	if l.Background.Page < 1 {
		return errors.New("background page must be a positive integer")
	}

	seen := make(map[string]bool, len(l.Elements))
	for _, el := range l.Elements {
		if el.ID == "" {
			return errors.New("element id is required")
		}
		if seen[el.ID] {
			return fmt.Errorf("duplicate element id %q", el.ID)
		}
		seen[el.ID] = true

		switch el.Type {
		case ElementStaticText, ElementDynamicText:
		case ElementImage:
			if el.SourceAsset == "" {
				return fmt.Errorf("element %q: image elements require a source asset", el.ID)
			}
		default:
			return fmt.Errorf("element %q: unknown type %q", el.ID, el.Type)
		}

		if el.Layer < 0 {
			return fmt.Errorf("element %q: layer must not be negative", el.ID)
		}

		if el.Style != nil {
			if el.Style.Color != "" && !colorPattern.MatchString(el.Style.Color) {
				return fmt.Errorf("element %q: color %q is not a 6-digit hex color", el.ID, el.Style.Color)
			}
			switch el.Style.Align {
			case "", "left", "center", "right":
			default:
				return fmt.Errorf("element %q: align %q must be left, center or right", el.ID, el.Style.Align)
			}
		}
	}
	return nil
}

type TemplateDefinition struct {
	ID     uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Name   string         `gorm:"size:255;not null" json:"name"`
	Layout TemplateLayout `gorm:"type:jsonb;not null" json:"layout"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *TemplateDefinition) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
