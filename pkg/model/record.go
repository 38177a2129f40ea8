package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Reserved attribute names written alongside the payload.
const (
	AttrPK        = "PK"
	AttrSK        = "SK"
	AttrRunID     = "runId"
	AttrUpdatedAt = "updatedAt"
)

// ProfileSK is the sort key of an entity's main record.
const ProfileSK = "PROFILE"

// RecordKey is the composite identity of a primary-store record.
type RecordKey struct {
	PK string `json:"PK" bson:"pk"`
	SK string `json:"SK" bson:"sk"`
}

// ID returns the storage identifier "PK|SK".
func (k RecordKey) ID() string {
	return k.PK + "|" + k.SK
}

func (k RecordKey) String() string {
	return k.ID()
}

// ParseRecordID is the inverse of RecordKey.ID.
func ParseRecordID(id string) (RecordKey, error) {
	pk, sk, ok := strings.Cut(id, "|")
	if !ok || pk == "" {
		return RecordKey{}, Validationf("invalid record id %q", id)
	}
	return RecordKey{PK: pk, SK: sk}, nil
}

// Record is a primary-store entity.
type Record struct {
	Key        RecordKey      `json:"key"`
	Attributes map[string]any `json:"attributes"`
	RunID      string         `json:"runId,omitempty"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Image renders the record as a tagged change-event image: the payload
// attributes plus PK, SK, runId and updatedAt.
func (r *Record) Image() (map[string]AttributeValue, error) {
	img, err := EncodeImage(r.Attributes)
	if err != nil {
		return nil, err
	}
	img[AttrPK] = StringValue(r.Key.PK)
	img[AttrSK] = StringValue(r.Key.SK)
	if r.RunID != "" {
		img[AttrRunID] = StringValue(r.RunID)
	}
	if !r.UpdatedAt.IsZero() {
		img[AttrUpdatedAt] = StringValue(r.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	return img, nil
}

// EventName classifies a ChangeEvent.
type EventName string

const (
	EventCreated EventName = "Created"
	EventUpdated EventName = "Updated"
	EventDeleted EventName = "Deleted"
)

// ChangeEvent describes one committed mutation of the primary store.
type ChangeEvent struct {
	EventName EventName                 `json:"eventName"`
	Keys      map[string]AttributeValue `json:"Keys"`
	NewImage  map[string]AttributeValue `json:"NewImage,omitempty"`
	OldImage  map[string]AttributeValue `json:"OldImage,omitempty"`
}

// NewChangeEvent builds an event for key with the given images.
func NewChangeEvent(name EventName, key RecordKey, newImage, oldImage map[string]AttributeValue) ChangeEvent {
	return ChangeEvent{
		EventName: name,
		Keys: map[string]AttributeValue{
			AttrPK: StringValue(key.PK),
			AttrSK: StringValue(key.SK),
		},
		NewImage: newImage,
		OldImage: oldImage,
	}
}

// Key extracts the record key from Keys. Missing or non-string keys yield empty fields.
func (e ChangeEvent) Key() RecordKey {
	var k RecordKey
	if v, ok := e.Keys[AttrPK]; ok && v.Kind == KindString {
		k.PK = v.S
	}
	if v, ok := e.Keys[AttrSK]; ok && v.Kind == KindString {
		k.SK = v.S
	}
	return k
}

// SearchDocument is the index projection of a tracked record.
type SearchDocument struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Styles   []string `json:"styles"`
	Location string   `json:"location"`
}

// UpsertMessage is an externally sourced update scoped to a run.
type UpsertMessage struct {
	EntityID string         `json:"entityId" validate:"required,max=256,excludesall=0x7C"`
	RunID    string         `json:"runId" validate:"required,max=256"`
	Payload  map[string]any `json:"payload" validate:"required,min=1"`
}

// messageValidate is shared by all request types in this package.
var messageValidate *validator.Validate

func init() {
	messageValidate = validator.New()
}

// Validate checks the message against its validation tags and rejects
// payload keys that collide with reserved attributes.
func (m *UpsertMessage) Validate() error {
	if err := messageValidate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return ValidateAttributeNames(m.Payload)
}

// ValidateAttributeNames rejects reserved names and names the stores cannot
// address as a field path.
func ValidateAttributeNames(attrs map[string]any) error {
	for name := range attrs {
		switch {
		case name == AttrPK, name == AttrSK, name == AttrRunID, name == AttrUpdatedAt:
			return Validationf("payload must not set reserved attribute %s", name)
		case name == "", strings.HasPrefix(name, "$"), strings.Contains(name, "."):
			return Validationf("invalid attribute name %q", name)
		}
	}
	return nil
}

// ArtistInput is the body of artist create and replace requests.
type ArtistInput struct {
	ID       string   `json:"id" validate:"required,max=128,excludesall=0x7C"`
	Name     string   `json:"name" validate:"required,max=256"`
	Styles   []string `json:"styles" validate:"dive,required,max=64"`
	Location string   `json:"location" validate:"max=256"`
}

// Validate checks the input against its validation tags.
func (a *ArtistInput) Validate() error {
	if err := messageValidate.Struct(a); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// Attributes maps the input to record attributes.
func (a *ArtistInput) Attributes() map[string]any {
	styles := a.Styles
	if styles == nil {
		styles = []string{}
	}
	return map[string]any{
		"name":     a.Name,
		"styles":   styles,
		"location": a.Location,
	}
}
