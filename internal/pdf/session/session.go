// Package session holds the mutable state of one signing session: the
// loaded template, the placements made so far, the adopted signature and any
// page bitmaps supplied for display.
package session

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/a3tai/mcp-pdf-signer/internal/pdf/compose"
	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/fieldcheck"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/form"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/placement"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/raster"
)

// FillMode selects how a raw value becomes a placement
type FillMode string

const (
	FillText             FillMode = "text"
	FillCheck            FillMode = "check"
	FillTypedSignature   FillMode = "typed-signature"
	FillAdoptedSignature FillMode = "adopted-signature"
)

// ParseFillMode maps a mode name to a FillMode. Empty means FillText.
func ParseFillMode(s string) (FillMode, error) {
	switch m := FillMode(strings.TrimSpace(s)); m {
	case "":
		return FillText, nil
	case FillText, FillCheck, FillTypedSignature, FillAdoptedSignature:
		return m, nil
	default:
		return "", signerr.Rejection(fmt.Sprintf("unknown fill mode %q", s))
	}
}

// uncheckValues clear a checkbox when passed to FillCheck
var uncheckValues = map[string]bool{
	"false": true, "0": true, "no": true, "off": true, "unchecked": true,
}

// Session is one person filling one template. All methods are safe for
// concurrent use. A rejected operation leaves the session unchanged.
type Session struct {
	id         string
	template   *form.Template
	placements *placement.Set
	radio      *placement.RadioResolver
	parseable  bool
	created    time.Time

	mu        sync.Mutex
	signature *form.Signature
	pages     map[int]form.PageImage
	updated   time.Time
}

// New starts a session over t
func New(id string, t *form.Template) *Session {
	set := placement.NewSet()
	now := time.Now()
	return &Session{
		id:         id,
		template:   t,
		placements: set,
		radio:      placement.NewRadioResolver(t, set),
		parseable:  compose.Parseable(t.Source),
		created:    now,
		updated:    now,
		pages:      make(map[int]form.PageImage),
	}
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Template returns the template the session fills
func (s *Session) Template() *form.Template { return s.template }

func (s *Session) touch() {
	s.mu.Lock()
	s.updated = time.Now()
	s.mu.Unlock()
}

func (s *Session) field(id string) (form.Field, error) {
	f, ok := s.template.Field(id)
	if !ok {
		return form.Field{}, signerr.New(signerr.KindUnknownField, "no such field").WithField(id)
	}
	return f, nil
}

// Adopt sets the signature used by FillAdoptedSignature. Placements made
// from an earlier signature are kept.
func (s *Session) Adopt(sig form.Signature) error {
	if strings.TrimSpace(sig.Name) == "" && len(sig.Drawn) == 0 && len(sig.Uploaded) == 0 {
		return signerr.Rejection("a signature needs a typed name, a drawing or an uploaded image")
	}
	if _, err := raster.ParseColor(sig.Color, raster.DefaultInk); err != nil {
		return signerr.Rejection(err.Error())
	}
	if strings.TrimSpace(sig.Initials) == "" {
		sig.Initials = initialsOf(sig.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.signature = &sig
	s.updated = time.Now()
	return nil
}

// Signature returns the adopted signature
func (s *Session) Signature() (form.Signature, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signature == nil {
		return form.Signature{}, false
	}
	return *s.signature, true
}

// initialsOf takes the first letter of each word of name
func initialsOf(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			b.WriteString(strings.ToUpper(string(r)))
			break
		}
	}
	return b.String()
}

// Fill validates raw for field fieldID under mode and stores the resulting
// placement. It returns the stored placement, or nil when the fill cleared
// a checkbox.
func (s *Session) Fill(fieldID string, mode FillMode, raw string) (*form.Placement, error) {
	f, err := s.field(fieldID)
	if err != nil {
		return nil, err
	}
	if f.Type == form.FieldTypeRadio {
		return nil, signerr.Rejection("radio options are chosen with select, not filled").WithField(fieldID)
	}

	var p form.Placement
	switch mode {
	case FillText, "":
		value, err := fieldcheck.Validate(f.Type, raw)
		if err != nil {
			return nil, withField(err, fieldID)
		}
		p = form.TextPlacement(value)

	case FillCheck:
		if f.Type != form.FieldTypeCheckbox {
			return nil, signerr.Rejection(fmt.Sprintf("%s fields cannot be checked", f.Type)).WithField(fieldID)
		}
		if uncheckValues[strings.ToLower(strings.TrimSpace(raw))] {
			s.placements.Delete(fieldID)
			s.touch()
			return nil, nil
		}
		p = form.Checkmark()

	case FillTypedSignature:
		if !f.Type.IsSignatureLike() {
			return nil, signerr.Rejection(fmt.Sprintf("%s fields do not take a signature", f.Type)).WithField(fieldID)
		}
		text, err := fieldcheck.NonEmpty(raw)
		if err != nil {
			return nil, withField(err, fieldID)
		}
		family, ink := raster.DefaultSignatureFamily, raster.DefaultInk
		if sig, ok := s.Signature(); ok {
			if sig.FontFamily != "" {
				family = sig.FontFamily
			}
			if sig.Color != "" {
				ink = sig.Color
			}
		}
		p = form.SignatureText(strings.TrimSpace(text), family, ink)

	case FillAdoptedSignature:
		if !f.Type.IsSignatureLike() {
			return nil, signerr.Rejection(fmt.Sprintf("%s fields do not take a signature", f.Type)).WithField(fieldID)
		}
		sig, ok := s.Signature()
		if !ok {
			return nil, signerr.Rejection("adopt a signature before signing").WithField(fieldID)
		}
		if sig.FontFamily == "" {
			sig.FontFamily = raster.DefaultSignatureFamily
		}
		if sig.Color == "" {
			sig.Color = raster.DefaultInk
		}
		p, err = sig.PlacementFor(f.Type)
		if err != nil {
			return nil, signerr.Rejection(err.Error()).WithField(fieldID)
		}

	default:
		return nil, signerr.Rejection(fmt.Sprintf("unknown fill mode %q", mode)).WithField(fieldID)
	}

	s.placements.Put(fieldID, p)
	s.touch()
	return &p, nil
}

func withField(err error, fieldID string) error {
	var se *signerr.SignError
	if stderrors.As(err, &se) && se.FieldID == "" {
		return se.WithField(fieldID)
	}
	return err
}

// SelectRadio makes fieldID the selection of its group
func (s *Session) SelectRadio(fieldID string) (map[string]form.Placement, error) {
	group, err := s.radio.Select(fieldID)
	if err != nil {
		return nil, err
	}
	s.touch()
	return group, nil
}

// Clear removes the placement of fieldID. Radio options cannot be cleared.
// It reports whether a placement was removed.
func (s *Session) Clear(fieldID string) (bool, error) {
	f, err := s.field(fieldID)
	if err != nil {
		return false, err
	}
	if f.Type == form.FieldTypeRadio {
		return false, s.radio.Clear(fieldID)
	}
	removed := s.placements.Delete(fieldID)
	if removed {
		s.touch()
	}
	return removed, nil
}

// Placement returns the placement of fieldID, if filled
func (s *Session) Placement(fieldID string) (form.Placement, bool) {
	return s.placements.Get(fieldID)
}

// SetPageImage stores the display bitmap of a 1-based page. The bitmap must
// decode as PNG or JPEG.
func (s *Session) SetPageImage(page int, img form.PageImage) error {
	if page < 1 {
		return signerr.Rejection(fmt.Sprintf("page must be >= 1, got %d", page)).WithPage(page)
	}
	if n := s.template.NumPages; n > 0 && page > n {
		return signerr.Rejection(fmt.Sprintf("page %d exceeds page count %d", page, n)).WithPage(page)
	}
	if img.Scale < 0 {
		return signerr.Rejection("scale must be positive").WithPage(page)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return signerr.Rejection("page image must be a PNG or JPEG bitmap").WithPage(page)
	}
	if format != "png" && format != "jpeg" {
		return signerr.Rejection(fmt.Sprintf("page image is %s, expected png or jpeg", format)).WithPage(page)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page] = img
	s.updated = time.Now()
	return nil
}

// Missing returns the requirements that have no placement, in field-list
// order. A required radio group counts as met once any option is selected.
func (s *Session) Missing() []string {
	return s.placements.Missing(s.template.Requirements())
}

// Input snapshots everything a composition needs
func (s *Session) Input() compose.Input {
	s.mu.Lock()
	pages := make(map[int]form.PageImage, len(s.pages))
	for p, img := range s.pages {
		pages[p] = img
	}
	s.mu.Unlock()

	return compose.Input{
		Template:   s.template,
		Placements: s.placements.Snapshot(),
		PageImages: pages,
	}
}

// Status is a read-only summary of a session
type Status struct {
	ID         string            `json:"session_id"`
	Template   string            `json:"template"`
	NumPages   int               `json:"num_pages"`
	Fields     int               `json:"fields"`
	Filled     []string          `json:"filled"`
	Missing    []string          `json:"missing"`
	Radio      map[string]string `json:"radio_selections,omitempty"`
	Adopted    bool              `json:"signature_adopted"`
	PageImages []int             `json:"page_images"`
	Parseable  bool              `json:"parseable"`
	Complete   bool              `json:"complete"`
	Created    time.Time         `json:"created"`
	Updated    time.Time         `json:"updated"`
}

// Status summarizes the session. Parseable reports whether composition will
// edit the source document directly.
func (s *Session) Status() Status {
	st := Status{
		ID:        s.id,
		Template:  s.template.Name,
		NumPages:  s.template.NumPages,
		Fields:    len(s.template.Fields),
		Filled:    s.placements.IDs(),
		Missing:   s.Missing(),
		Parseable: s.parseable,
		Created:   s.created,
	}
	st.Complete = len(st.Missing) == 0

	for _, gid := range groupIDs(s.template) {
		if id, ok := s.radio.Selected(gid); ok {
			if st.Radio == nil {
				st.Radio = make(map[string]string)
			}
			st.Radio[gid] = id
		}
	}

	s.mu.Lock()
	st.Adopted = s.signature != nil
	st.Updated = s.updated
	for p := range s.pages {
		st.PageImages = append(st.PageImages, p)
	}
	s.mu.Unlock()
	sort.Ints(st.PageImages)
	return st
}

func groupIDs(t *form.Template) []string {
	ids := make([]string, 0, len(t.RadioGroups))
	for id := range t.RadioGroups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
