package form

import (
	"fmt"
	"sort"
)

// FieldType identifies what kind of value a field accepts
type FieldType string

const (
	FieldTypeSignature    FieldType = "signature"
	FieldTypeInitials     FieldType = "initials"
	FieldTypeStamp        FieldType = "stamp"
	FieldTypeDate         FieldType = "date"
	FieldTypeName         FieldType = "name"
	FieldTypeEmail        FieldType = "email"
	FieldTypeCompany      FieldType = "company"
	FieldTypeTitle        FieldType = "title"
	FieldTypeNumber       FieldType = "number"
	FieldTypeCheckbox     FieldType = "checkbox"
	FieldTypeDropdown     FieldType = "dropdown"
	FieldTypeRadio        FieldType = "radio"
	FieldTypePhone        FieldType = "phone"
	FieldTypeAge          FieldType = "age"
	FieldTypeNumberSelect FieldType = "numberSelect"
	FieldTypeState        FieldType = "state"
	FieldTypeText         FieldType = "text"
)

var knownFieldTypes = map[FieldType]bool{
	FieldTypeSignature: true, FieldTypeInitials: true, FieldTypeStamp: true,
	FieldTypeDate: true, FieldTypeName: true, FieldTypeEmail: true,
	FieldTypeCompany: true, FieldTypeTitle: true, FieldTypeNumber: true,
	FieldTypeCheckbox: true, FieldTypeDropdown: true, FieldTypeRadio: true,
	FieldTypePhone: true, FieldTypeAge: true, FieldTypeNumberSelect: true,
	FieldTypeState: true, FieldTypeText: true,
}

// Valid reports whether t is one of the known field types
func (t FieldType) Valid() bool {
	return knownFieldTypes[t]
}

// IsSignatureLike reports whether the field is filled from the adopted signature
func (t FieldType) IsSignatureLike() bool {
	return t == FieldTypeSignature || t == FieldTypeInitials || t == FieldTypeStamp
}

// IsTyped reports whether the field is filled through typed text input
func (t FieldType) IsTyped() bool {
	return t.Valid() && !t.IsSignatureLike() && t != FieldTypeCheckbox && t != FieldTypeRadio
}

// Rect is a rectangle with a top-left origin. Units depend on context: page
// points for absolute geometry, fractions of the page for normalized geometry.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Field is a positioned region on one template page
type Field struct {
	ID         string    `json:"id"`
	Type       FieldType `json:"type"`
	Page       int       `json:"page"`
	Rect       *Rect     `json:"rect,omitempty"`
	Norm       *Rect     `json:"norm,omitempty"`
	Required   bool      `json:"required"`
	GroupID    string    `json:"group_id,omitempty"`
	OptionText string    `json:"option_text,omitempty"`
}

// Validate checks the structural invariants of a field
func (f Field) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("field id cannot be empty")
	}
	if !f.Type.Valid() {
		return fmt.Errorf("field %s: unknown type %q", f.ID, f.Type)
	}
	if f.Page < 1 {
		return fmt.Errorf("field %s: page must be >= 1, got %d", f.ID, f.Page)
	}
	if f.Type == FieldTypeRadio && f.GroupID == "" {
		return fmt.Errorf("field %s: radio fields require a group id", f.ID)
	}
	if (f.Rect == nil) == (f.Norm == nil) {
		return fmt.Errorf("field %s: exactly one of absolute or normalized geometry is required", f.ID)
	}
	r := f.Rect
	if r == nil {
		r = f.Norm
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("field %s: width and height must be positive", f.ID)
	}
	return nil
}

// IsNormalized reports whether the field geometry is expressed as page fractions
func (f Field) IsNormalized() bool {
	return f.Norm != nil
}

// RadioGroup is a set of radio fields with mutually exclusive selection
type RadioGroup struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Options []string `json:"options"`
	Color   string   `json:"color"`
}

// PlacementKind tags the content variant held by a Placement
type PlacementKind int

const (
	PlacementText PlacementKind = iota + 1
	PlacementCheckmark
	PlacementRadioSelected
	PlacementSignatureText
	PlacementSignatureImage
)

// String returns a string representation of the PlacementKind
func (k PlacementKind) String() string {
	switch k {
	case PlacementText:
		return "text"
	case PlacementCheckmark:
		return "checkmark"
	case PlacementRadioSelected:
		return "radio"
	case PlacementSignatureText:
		return "signature_text"
	case PlacementSignatureImage:
		return "signature_image"
	default:
		return "unknown"
	}
}

// Placement is the concrete content bound to one field
type Placement struct {
	Kind       PlacementKind `json:"kind"`
	Text       string        `json:"text,omitempty"`
	FontFamily string        `json:"font_family,omitempty"`
	Color      string        `json:"color,omitempty"`
	Image      []byte        `json:"image,omitempty"`
}

// TextPlacement holds a validated, normalized text value
func TextPlacement(text string) Placement {
	return Placement{Kind: PlacementText, Text: text}
}

// Checkmark marks a checkbox as checked
func Checkmark() Placement {
	return Placement{Kind: PlacementCheckmark}
}

// RadioSelected marks a radio field as the selection of its group
func RadioSelected() Placement {
	return Placement{Kind: PlacementRadioSelected}
}

// SignatureText renders text in a signature font when composed
func SignatureText(text, fontFamily, color string) Placement {
	return Placement{Kind: PlacementSignatureText, Text: text, FontFamily: fontFamily, Color: color}
}

// SignatureImage embeds an already rasterized PNG signature
func SignatureImage(png []byte) Placement {
	return Placement{Kind: PlacementSignatureImage, Image: png}
}

// Signature is the rendering identity adopted for the lifetime of a session
type Signature struct {
	Name       string `json:"name"`
	Initials   string `json:"initials"`
	FontFamily string `json:"font_family"`
	Color      string `json:"color,omitempty"`
	Drawn      []byte `json:"-"`
	Uploaded   []byte `json:"-"`
}

// PlacementFor derives the placement a signature-like field receives from
// the adopted signature. A drawn image wins over an uploaded one, and both
// win over typed text.
func (s Signature) PlacementFor(t FieldType) (Placement, error) {
	switch {
	case len(s.Drawn) > 0:
		return SignatureImage(s.Drawn), nil
	case len(s.Uploaded) > 0:
		return SignatureImage(s.Uploaded), nil
	}

	text := s.Name
	if t == FieldTypeInitials {
		text = s.Initials
	}
	if text == "" {
		return Placement{}, fmt.Errorf("adopted signature has no %s text", t)
	}
	return SignatureText(text, s.FontFamily, s.Color), nil
}

// PageImage is a full-page bitmap produced for on-screen display. Scale is the
// number of pixels per page point the bitmap was rendered at.
type PageImage struct {
	Data  []byte  `json:"-"`
	Scale float64 `json:"scale"`
}

// Template is a loaded document plus its field layout. It is not modified
// after loading.
type Template struct {
	Name        string                `json:"name"`
	Source      []byte                `json:"-"`
	SourceURL   string                `json:"source_url,omitempty"`
	Fields      []Field               `json:"fields"`
	RadioGroups map[string]RadioGroup `json:"radio_groups"`
	NumPages    int                   `json:"num_pages"`
}

// Validate checks template-wide invariants
func (t *Template) Validate() error {
	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if err := f.Validate(); err != nil {
			return err
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate field id %q", f.ID)
		}
		seen[f.ID] = true
		if t.NumPages > 0 && f.Page > t.NumPages {
			return fmt.Errorf("field %s: page %d exceeds page count %d", f.ID, f.Page, t.NumPages)
		}
	}
	return nil
}

// Field returns the field with the given ID
func (t *Template) Field(id string) (Field, bool) {
	for _, f := range t.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// GroupMembers returns the IDs of the fields sharing groupID, in field-list order
func (t *Template) GroupMembers(groupID string) []string {
	var ids []string
	for _, f := range t.Fields {
		if f.GroupID == groupID && f.Type == FieldTypeRadio {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// GroupColor returns the display color of a radio group, or "" if unknown
func (t *Template) GroupColor(groupID string) string {
	if g, ok := t.RadioGroups[groupID]; ok {
		return g.Color
	}
	return ""
}

// Requirement is one required entry of a template. It is met when any field
// in AnyOf has a placement. A radio group with required options yields a
// single requirement, named after its first required option, covering every
// option of the group.
type Requirement struct {
	ID    string
	AnyOf []string
}

// Requirements returns the template's requirements in field-list order
func (t *Template) Requirements() []Requirement {
	var reqs []Requirement
	groups := make(map[string]bool)
	for _, f := range t.Fields {
		if !f.Required {
			continue
		}
		if f.Type == FieldTypeRadio && f.GroupID != "" {
			if groups[f.GroupID] {
				continue
			}
			groups[f.GroupID] = true
			reqs = append(reqs, Requirement{ID: f.ID, AnyOf: t.GroupMembers(f.GroupID)})
			continue
		}
		reqs = append(reqs, Requirement{ID: f.ID, AnyOf: []string{f.ID}})
	}
	return reqs
}

// RequiredFields returns the IDs of the template's requirements in
// field-list order. A required radio group appears once.
func (t *Template) RequiredFields() []string {
	var ids []string
	for _, r := range t.Requirements() {
		ids = append(ids, r.ID)
	}
	return ids
}

// Pages returns the sorted distinct page numbers referenced by fields
func (t *Template) Pages() []int {
	set := make(map[int]bool)
	for _, f := range t.Fields {
		set[f.Page] = true
	}
	pages := make([]int, 0, len(set))
	for p := range set {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}
