package syncer

import (
	"fmt"
	"strings"

	"github.com/syntrixbase/inkwell/pkg/model"
)

// ActionType is what the index should do for one event.
type ActionType string

const (
	ActionUpsert ActionType = "upsert"
	ActionDelete ActionType = "delete"
	ActionSkip   ActionType = "skip"
)

// Action is the projection of a single change event.
type Action struct {
	Type ActionType
	// ID is the document id, set for upserts and deletes.
	ID string
	// Document is set for upserts.
	Document *model.SearchDocument
}

// Projector maps change events to index actions. It has no side effects.
type Projector struct {
	prefix string
}

// NewProjector returns a projector tracking partition keys with prefix.
func NewProjector(prefix string) *Projector {
	return &Projector{prefix: prefix}
}

// Project returns the action for evt. Errors are always ErrValidation: a
// malformed event will never project, no matter how often it is retried.
func (p *Projector) Project(evt model.ChangeEvent) (Action, error) {
	var image map[string]model.AttributeValue
	switch evt.EventName {
	case model.EventCreated, model.EventUpdated:
		image = evt.NewImage
		if image == nil {
			return Action{Type: ActionSkip}, model.Validationf("%s event without NewImage", evt.EventName)
		}
	case model.EventDeleted:
		image = evt.OldImage
	default:
		return Action{Type: ActionSkip}, nil
	}

	key := evt.Key()
	if key.PK == "" {
		key.PK = stringAttr(image, model.AttrPK)
	}
	if key.SK == "" {
		key.SK = stringAttr(image, model.AttrSK)
	}
	if key.PK == "" {
		return Action{Type: ActionSkip}, model.Validationf("%s event without partition key", evt.EventName)
	}
	if !strings.HasPrefix(key.PK, p.prefix) || (key.SK != "" && key.SK != model.ProfileSK) {
		return Action{Type: ActionSkip}, nil
	}

	if evt.EventName == model.EventDeleted {
		return Action{Type: ActionDelete, ID: key.PK}, nil
	}

	attrs, err := model.DecodeImage(image)
	if err != nil {
		return Action{Type: ActionSkip}, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	doc, err := documentOf(key.PK, attrs)
	if err != nil {
		return Action{Type: ActionSkip}, err
	}
	return Action{Type: ActionUpsert, ID: key.PK, Document: doc}, nil
}

func documentOf(id string, attrs map[string]any) (*model.SearchDocument, error) {
	doc := &model.SearchDocument{ID: id, Styles: []string{}}

	switch v := attrs["name"].(type) {
	case nil:
	case string:
		doc.Name = v
	default:
		return nil, model.Validationf("name: expected string, got %T", v)
	}

	switch v := attrs["location"].(type) {
	case nil:
	case string:
		doc.Location = v
	default:
		return nil, model.Validationf("location: expected string, got %T", v)
	}

	switch v := attrs["styles"].(type) {
	case nil:
	case string:
		if v != "" {
			doc.Styles = []string{v}
		}
	case []string:
		doc.Styles = append(doc.Styles, v...)
	case []any:
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, model.Validationf("styles[%d]: expected string, got %T", i, item)
			}
			doc.Styles = append(doc.Styles, s)
		}
	default:
		return nil, model.Validationf("styles: expected string set, got %T", v)
	}
	return doc, nil
}

func stringAttr(image map[string]model.AttributeValue, name string) string {
	if v, ok := image[name]; ok && v.Kind == model.KindString {
		return v.S
	}
	return ""
}
