package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	dErrors "phones/pkg/domain-errors"
)

// VoidEntityType is the sentinel owner type. It is always present in the type
// registry and is what a record gets when no owner type was supplied.
const VoidEntityType = "VoidPhoneEntity"

// Column width limits from the phones table schema.
const (
	MaxCountryLen = 4
	MaxNumberLen  = 20
	MaxTypeLen    = 50
)

// Phone is the persisted record. Derived representations live on PhoneView
// and are never stored.
type Phone struct {
	ID          uuid.UUID         `json:"id"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	Entity      uuid.UUID         `json:"entity"`
	Type        string            `json:"type"`
	Country     string            `json:"country"`
	Number      string            `json:"number"`
	Description *string           `json:"description"`
	Primary     bool              `json:"primary"`
	Confirmed   bool              `json:"confirmed"`
	MetaData    []json.RawMessage `json:"metaData"`
}

// Formatted holds the rendered representations of a number.
type Formatted struct {
	National      string `json:"national"`
	International string `json:"international"`
	URI           string `json:"uri"`
}

// PhoneView is the read-only shape served to callers: the stored record plus
// fields derived from (number, country) at read time. Derived fields are
// recomputed on every read so they cannot drift from their source columns.
type PhoneView struct {
	Phone
	CountryCallingCode string    `json:"countryCallingCode"`
	NumberType         string    `json:"numberType"`
	Formatted          Formatted `json:"formatted"`
}

// PhoneInput is a partial record. Nil fields mean "not provided"; the service
// fills them from the baseline record (or the default record) before writing.
type PhoneInput struct {
	ID          *uuid.UUID        `json:"id,omitempty"`
	Entity      *uuid.UUID        `json:"entity,omitempty"`
	Type        *string           `json:"type,omitempty"`
	Country     *string           `json:"country,omitempty"`
	Number      *string           `json:"number,omitempty"`
	Description *string           `json:"description,omitempty"`
	Primary     *bool             `json:"primary,omitempty"`
	Confirmed   *bool             `json:"confirmed,omitempty"`
	MetaData    []json.RawMessage `json:"metaData,omitempty"`
}

// ReplaceResult reports the outcome of a replace reconciliation.
type ReplaceResult struct {
	Deleted   []uuid.UUID `json:"deleted"`
	Persisted []uuid.UUID `json:"persisted"`
	Affected  []uuid.UUID `json:"affected"`
}

// DefaultPhone is the fully-populated record every write starts from: fresh
// random id, both timestamps at now, the configured fallback country, the void
// owner type and empty metadata.
func DefaultPhone(now time.Time, defaultCountry string) Phone {
	return Phone{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
		Entity:    uuid.Nil,
		Type:      VoidEntityType,
		Country:   defaultCountry,
		Number:    "",
		Primary:   false,
		Confirmed: false,
		MetaData:  []json.RawMessage{},
	}
}

// Merge applies the provided fields of in on top of base, field by field.
// Timestamps are not merged from input; the service owns stamping.
func Merge(base Phone, in PhoneInput) Phone {
	out := base
	if in.ID != nil {
		out.ID = *in.ID
	}
	if in.Entity != nil {
		out.Entity = *in.Entity
	}
	if in.Type != nil {
		out.Type = *in.Type
	}
	if in.Country != nil {
		out.Country = *in.Country
	}
	if in.Number != nil {
		out.Number = *in.Number
	}
	if in.Description != nil {
		out.Description = in.Description
	}
	if in.Primary != nil {
		out.Primary = *in.Primary
	}
	if in.Confirmed != nil {
		out.Confirmed = *in.Confirmed
	}
	if in.MetaData != nil {
		out.MetaData = in.MetaData
	}
	return out
}

// Validate checks column-level invariants before a record reaches the store.
func (p Phone) Validate() error {
	if p.ID == uuid.Nil {
		return dErrors.New(dErrors.CodeInvalidInput, "phone id is required")
	}
	if len(p.Country) > MaxCountryLen {
		return dErrors.Newf(dErrors.CodeInvalidInput, "country code %q exceeds %d characters", p.Country, MaxCountryLen)
	}
	if len(p.Number) > MaxNumberLen {
		return dErrors.Newf(dErrors.CodeInvalidInput, "number exceeds %d characters", MaxNumberLen)
	}
	if err := ValidateTypeTag(p.Type); err != nil {
		return err
	}
	return nil
}

// ValidateTypeTag enforces the registry's tag syntax: non-empty, alphabetic
// only, case-sensitive as given.
func ValidateTypeTag(tag string) error {
	if tag == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "type tag is required")
	}
	if len(tag) > MaxTypeLen {
		return dErrors.Newf(dErrors.CodeInvalidInput, "type tag %q exceeds %d characters", tag, MaxTypeLen)
	}
	for _, r := range tag {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return dErrors.Newf(dErrors.CodeInvalidInput, "type tag %q must be alphabetic", tag)
		}
	}
	return nil
}
