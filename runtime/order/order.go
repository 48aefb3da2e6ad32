// Package order holds the coffee-order state that a voice session fills in
// turn by turn: the mutable Draft, the atomic Update applied to it, and the
// immutable ConfirmedOrder that is handed to persistence.
//
// A Draft is owned by exactly one session and is not safe for concurrent
// mutation. Sessions only mutate it from their turn loop; speculative work
// reads Clone()d snapshots.
package order

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Field identifies one of the five required order fields.
type Field int

const (
	// FieldDrinkType is the drink being ordered (e.g. "Latte").
	FieldDrinkType Field = iota
	// FieldSize is the cup size (e.g. "Medium").
	FieldSize
	// FieldMilk is the milk preference (e.g. "Oat", or "None").
	FieldMilk
	// FieldExtras is the list of extras; an empty list means "none".
	FieldExtras
	// FieldName is the customer's name for the cup.
	FieldName
)

// AllFields lists the required fields in read-back order.
var AllFields = []Field{FieldDrinkType, FieldSize, FieldMilk, FieldExtras, FieldName}

// String returns the wire name of the field.
func (f Field) String() string {
	switch f {
	case FieldDrinkType:
		return "drinkType"
	case FieldSize:
		return "size"
	case FieldMilk:
		return "milk"
	case FieldExtras:
		return "extras"
	case FieldName:
		return "name"
	default:
		return "unknown"
	}
}

// noneExtra is the spoken form customers use for an empty extras list.
const noneExtra = "none"

// Draft is the partially filled order for the current customer.
// The zero value is an empty draft.
type Draft struct {
	drinkType string
	size      string
	milk      string
	extras    []string
	extrasSet bool
	name      string
}

// NewDraft returns an empty draft.
func NewDraft() *Draft {
	return &Draft{}
}

// Update carries newly supplied values for any subset of fields.
// A nil pointer (or nil Extras) means the field was not mentioned.
type Update struct {
	DrinkType *string  `json:"drinkType,omitempty"`
	Size      *string  `json:"size,omitempty"`
	Milk      *string  `json:"milk,omitempty"`
	Extras    []string `json:"extras,omitempty"`
	// ExtrasNone marks an explicit "no extras" answer, since an empty
	// Extras slice is indistinguishable from "not mentioned" on the wire.
	ExtrasNone bool    `json:"extrasNone,omitempty"`
	Name       *string `json:"name,omitempty"`
}

// IsZero reports whether the update mentions no field at all.
func (u *Update) IsZero() bool {
	return u == nil || (u.DrinkType == nil && u.Size == nil && u.Milk == nil &&
		u.Extras == nil && !u.ExtrasNone && u.Name == nil)
}

// Apply merges the update into the draft. The update is validated as a
// whole before anything is written: either every mentioned field is applied
// or none is. Fields cannot be cleared through Apply; use Reset.
func (d *Draft) Apply(u *Update) error {
	if u.IsZero() {
		return nil
	}

	next := *d
	next.extras = cloneStrings(d.extras)

	set := func(dst *string, v *string, f Field) error {
		if v == nil {
			return nil
		}
		s := strings.TrimSpace(*v)
		if s == "" {
			return &FieldError{Field: f, Err: ErrFieldCleared}
		}
		*dst = s
		return nil
	}

	if err := set(&next.drinkType, u.DrinkType, FieldDrinkType); err != nil {
		return err
	}
	if err := set(&next.size, u.Size, FieldSize); err != nil {
		return err
	}
	if err := set(&next.milk, u.Milk, FieldMilk); err != nil {
		return err
	}
	if err := set(&next.name, u.Name, FieldName); err != nil {
		return err
	}
	if u.ExtrasNone || u.Extras != nil {
		next.extras = NormalizeExtras(u.Extras)
		next.extrasSet = true
	}

	*d = next
	return nil
}

// NormalizeExtras trims entries, drops blanks and collapses an explicit
// "none" into the empty list. The result is never nil.
func NormalizeExtras(extras []string) []string {
	out := make([]string, 0, len(extras))
	for _, e := range extras {
		e = strings.TrimSpace(e)
		if e == "" || strings.EqualFold(e, noneExtra) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Missing returns the fields still unknown, in read-back order.
func (d *Draft) Missing() []Field {
	var missing []Field
	if d.drinkType == "" {
		missing = append(missing, FieldDrinkType)
	}
	if d.size == "" {
		missing = append(missing, FieldSize)
	}
	if d.milk == "" {
		missing = append(missing, FieldMilk)
	}
	if !d.extrasSet {
		missing = append(missing, FieldExtras)
	}
	if d.name == "" {
		missing = append(missing, FieldName)
	}
	return missing
}

// Complete reports whether all five fields are known.
func (d *Draft) Complete() bool {
	return len(d.Missing()) == 0
}

// IsEmpty reports whether no field is known.
func (d *Draft) IsEmpty() bool {
	return len(d.Missing()) == len(AllFields)
}

// Reset clears the draft for a fresh order.
func (d *Draft) Reset() {
	*d = Draft{}
}

// Clone returns an independent copy of the draft.
func (d *Draft) Clone() *Draft {
	c := *d
	c.extras = cloneStrings(d.extras)
	return &c
}

// Confirm snapshots a complete draft into a ConfirmedOrder.
func (d *Draft) Confirm() (ConfirmedOrder, error) {
	if missing := d.Missing(); len(missing) > 0 {
		return ConfirmedOrder{}, &IncompleteError{Missing: missing}
	}
	return ConfirmedOrder{
		DrinkType: d.drinkType,
		Size:      d.size,
		Milk:      d.milk,
		Extras:    cloneStrings(d.extras),
		Name:      d.name,
	}, nil
}

// Snapshot is the read-only view of a draft sent to the dialogue policy.
type Snapshot struct {
	DrinkType string   `json:"drinkType,omitempty"`
	Size      string   `json:"size,omitempty"`
	Milk      string   `json:"milk,omitempty"`
	Extras    []string `json:"extras,omitempty"`
	ExtrasSet bool     `json:"extrasSet"`
	Name      string   `json:"name,omitempty"`
	Missing   []string `json:"missing,omitempty"`
}

// Snapshot returns the current view of the draft.
func (d *Draft) Snapshot() Snapshot {
	s := Snapshot{
		DrinkType: d.drinkType,
		Size:      d.size,
		Milk:      d.milk,
		Extras:    cloneStrings(d.extras),
		ExtrasSet: d.extrasSet,
		Name:      d.name,
	}
	for _, f := range d.Missing() {
		s.Missing = append(s.Missing, f.String())
	}
	return s
}

// ConfirmedOrder is the immutable record persisted after the customer
// affirmed the read-back. Extras may be empty (meaning "none"); every other
// field is a non-empty string.
type ConfirmedOrder struct {
	DrinkType string   `json:"drinkType"`
	Size      string   `json:"size"`
	Milk      string   `json:"milk"`
	Extras    []string `json:"extras"`
	Name      string   `json:"name"`
}

// MarshalJSON keeps empty extras as [] rather than null.
func (o ConfirmedOrder) MarshalJSON() ([]byte, error) {
	type alias ConfirmedOrder
	a := alias(o)
	if a.Extras == nil {
		a.Extras = []string{}
	}
	return json.Marshal(a)
}

// Equal reports whether two orders carry the same five values.
func (o ConfirmedOrder) Equal(other ConfirmedOrder) bool {
	if o.DrinkType != other.DrinkType || o.Size != other.Size ||
		o.Milk != other.Milk || o.Name != other.Name {
		return false
	}
	if len(o.Extras) != len(other.Extras) {
		return false
	}
	for i := range o.Extras {
		if o.Extras[i] != other.Extras[i] {
			return false
		}
	}
	return true
}

// Summary renders the order the way it is read back to the customer.
func (o ConfirmedOrder) Summary() string {
	extras := noneExtra
	if len(o.Extras) > 0 {
		extras = strings.Join(o.Extras, ", ")
	}
	return fmt.Sprintf("%s %s with %s milk, extras: %s, for %s",
		o.Size, o.DrinkType, o.Milk, extras, o.Name)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
