package placement

import (
	"fmt"

	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/form"
)

// RadioResolver enforces one selection per radio group over a Set
type RadioResolver struct {
	template *form.Template
	set      *Set
}

// NewRadioResolver binds a resolver to a template and its placement set
func NewRadioResolver(t *form.Template, set *Set) *RadioResolver {
	return &RadioResolver{template: t, set: set}
}

func (r *RadioResolver) radioField(fieldID string) (form.Field, error) {
	f, ok := r.template.Field(fieldID)
	if !ok {
		return form.Field{}, signerr.New(signerr.KindUnknownField, "no such field").WithField(fieldID)
	}
	if f.Type != form.FieldTypeRadio {
		return form.Field{}, signerr.Rejection(fmt.Sprintf("field is a %s, not a radio option", f.Type)).
			WithField(fieldID)
	}
	if f.GroupID == "" {
		return form.Field{}, signerr.New(signerr.KindInconsistentField, "radio field has no group").
			WithField(fieldID)
	}
	return f, nil
}

// Select makes fieldID the selection of its group, clearing every other
// member in the same step. Selecting the current selection again changes
// nothing. It returns the resulting placements of the group.
func (r *RadioResolver) Select(fieldID string) (map[string]form.Placement, error) {
	f, err := r.radioField(fieldID)
	if err != nil {
		return nil, err
	}

	members := r.template.GroupMembers(f.GroupID)
	group := make(map[string]form.Placement, 1)
	r.set.Update(func(items map[string]form.Placement) {
		for _, id := range members {
			if id != fieldID {
				delete(items, id)
			}
		}
		items[fieldID] = form.RadioSelected()
		group[fieldID] = items[fieldID]
	})
	return group, nil
}

// Selected returns the selected field of a group, if any
func (r *RadioResolver) Selected(groupID string) (string, bool) {
	for _, id := range r.template.GroupMembers(groupID) {
		if p, ok := r.set.Get(id); ok && p.Kind == form.PlacementRadioSelected {
			return id, true
		}
	}
	return "", false
}

// Clear is rejected for radio fields: once touched, a group always keeps
// exactly one selection
func (r *RadioResolver) Clear(fieldID string) error {
	f, err := r.radioField(fieldID)
	if err != nil {
		return err
	}
	return signerr.Rejection(fmt.Sprintf("radio group %q cannot be unselected; select another option instead", f.GroupID)).
		WithField(fieldID)
}
