package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

var (
	// ErrUnknownAttributeTag is returned when an image carries a type tag we do not decode.
	ErrUnknownAttributeTag = errors.New("unknown attribute tag")
	// ErrMalformedAttribute is returned when a tagged value has no tag, several tags,
	// or a payload that does not fit its tag.
	ErrMalformedAttribute = errors.New("malformed attribute value")
)

// AttributeKind is the type tag of an AttributeValue.
type AttributeKind string

const (
	KindString    AttributeKind = "S"
	KindNumber    AttributeKind = "N"
	KindStringSet AttributeKind = "SS"
	KindNumberSet AttributeKind = "NS"
	KindBool      AttributeKind = "BOOL"
	KindNull      AttributeKind = "NULL"
	KindList      AttributeKind = "L"
	KindMap       AttributeKind = "M"
)

// AttributeValue is a single tagged value inside a change-event image.
// On the wire it is an object with exactly one key naming the kind,
// e.g. {"S":"Jane"} or {"SS":["traditional","tribal"]}.
type AttributeValue struct {
	Kind AttributeKind

	// S holds the payload of KindString and the decimal text of KindNumber.
	S string
	// Set holds KindStringSet and KindNumberSet members.
	Set  []string
	Bool bool
	L    []AttributeValue
	M    map[string]AttributeValue
}

// StringValue builds a KindString value.
func StringValue(s string) AttributeValue { return AttributeValue{Kind: KindString, S: s} }

// StringSetValue builds a KindStringSet value.
func StringSetValue(ss ...string) AttributeValue {
	return AttributeValue{Kind: KindStringSet, Set: ss}
}

// NumberValue builds a KindNumber value.
func NumberValue(f float64) AttributeValue {
	return AttributeValue{Kind: KindNumber, S: strconv.FormatFloat(f, 'f', -1, 64)}
}

// MarshalJSON writes the single-key tagged form.
func (v AttributeValue) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.Kind {
	case KindString, KindNumber:
		payload = v.S
	case KindStringSet, KindNumberSet:
		payload = v.Set
	case KindBool:
		payload = v.Bool
	case KindNull:
		payload = true
	case KindList:
		payload = v.L
	case KindMap:
		payload = v.M
	case "":
		return nil, fmt.Errorf("%w: missing kind", ErrMalformedAttribute)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAttributeTag, v.Kind)
	}
	return json.Marshal(map[string]any{string(v.Kind): payload})
}

// UnmarshalJSON parses the single-key tagged form. Unrecognized tags are rejected.
func (v *AttributeValue) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedAttribute, err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("%w: expected exactly one tag, got %d", ErrMalformedAttribute, len(raw))
	}

	var out AttributeValue
	for tag, body := range raw {
		out.Kind = AttributeKind(tag)
		var err error
		switch out.Kind {
		case KindString:
			err = json.Unmarshal(body, &out.S)
		case KindNumber:
			err = json.Unmarshal(body, &out.S)
			if err == nil {
				_, err = strconv.ParseFloat(out.S, 64)
			}
		case KindStringSet, KindNumberSet:
			err = json.Unmarshal(body, &out.Set)
		case KindBool:
			err = json.Unmarshal(body, &out.Bool)
		case KindNull:
			var b bool
			err = json.Unmarshal(body, &b)
		case KindList:
			err = json.Unmarshal(body, &out.L)
		case KindMap:
			err = json.Unmarshal(body, &out.M)
		default:
			return fmt.Errorf("%w: %q", ErrUnknownAttributeTag, tag)
		}
		if err != nil {
			if errors.Is(err, ErrUnknownAttributeTag) || errors.Is(err, ErrMalformedAttribute) {
				return err
			}
			return fmt.Errorf("%w: tag %s: %v", ErrMalformedAttribute, tag, err)
		}
	}
	*v = out
	return nil
}

// Decode converts a tagged value into a plain Go value:
// string, float64, []string, []float64, bool, nil, []any or map[string]any.
func (v AttributeValue) Decode() (any, error) {
	switch v.Kind {
	case KindString:
		return v.S, nil
	case KindNumber:
		f, err := strconv.ParseFloat(v.S, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: number %q", ErrMalformedAttribute, v.S)
		}
		return f, nil
	case KindStringSet:
		out := make([]string, len(v.Set))
		copy(out, v.Set)
		return out, nil
	case KindNumberSet:
		out := make([]float64, 0, len(v.Set))
		for _, s := range v.Set {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: number %q", ErrMalformedAttribute, s)
			}
			out = append(out, f)
		}
		return out, nil
	case KindBool:
		return v.Bool, nil
	case KindNull:
		return nil, nil
	case KindList:
		out := make([]any, 0, len(v.L))
		for i, item := range v.L {
			d, err := item.Decode()
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			out = append(out, d)
		}
		return out, nil
	case KindMap:
		return DecodeImage(v.M)
	case "":
		return nil, fmt.Errorf("%w: missing kind", ErrMalformedAttribute)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAttributeTag, v.Kind)
	}
}

// DecodeImage decodes every attribute of an image. The first failing
// attribute aborts the decode and is named in the error.
func DecodeImage(img map[string]AttributeValue) (map[string]any, error) {
	out := make(map[string]any, len(img))
	for name, av := range img {
		d, err := av.Decode()
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = d
	}
	return out, nil
}

// EncodeValue converts a plain Go value into tagged form.
// []string becomes a string set; other slices become lists.
func EncodeValue(v any) (AttributeValue, error) {
	switch t := v.(type) {
	case nil:
		return AttributeValue{Kind: KindNull}, nil
	case string:
		return StringValue(t), nil
	case bool:
		return AttributeValue{Kind: KindBool, Bool: t}, nil
	case int:
		return AttributeValue{Kind: KindNumber, S: strconv.Itoa(t)}, nil
	case int32:
		return AttributeValue{Kind: KindNumber, S: strconv.FormatInt(int64(t), 10)}, nil
	case int64:
		return AttributeValue{Kind: KindNumber, S: strconv.FormatInt(t, 10)}, nil
	case float32:
		return encodeFloat(float64(t))
	case float64:
		return encodeFloat(t)
	case time.Time:
		return StringValue(t.UTC().Format(time.RFC3339Nano)), nil
	case []string:
		return StringSetValue(t...), nil
	case []any:
		list := make([]AttributeValue, 0, len(t))
		for i, item := range t {
			av, err := EncodeValue(item)
			if err != nil {
				return AttributeValue{}, fmt.Errorf("list[%d]: %w", i, err)
			}
			list = append(list, av)
		}
		return AttributeValue{Kind: KindList, L: list}, nil
	case map[string]any:
		m, err := EncodeImage(t)
		if err != nil {
			return AttributeValue{}, err
		}
		return AttributeValue{Kind: KindMap, M: m}, nil
	default:
		return AttributeValue{}, fmt.Errorf("%w: unsupported type %T", ErrMalformedAttribute, v)
	}
}

func encodeFloat(f float64) (AttributeValue, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return AttributeValue{}, fmt.Errorf("%w: non-finite number", ErrMalformedAttribute)
	}
	return NumberValue(f), nil
}

// EncodeImage converts a plain attribute map into tagged form.
func EncodeImage(attrs map[string]any) (map[string]AttributeValue, error) {
	out := make(map[string]AttributeValue, len(attrs))
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		av, err := EncodeValue(attrs[name])
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = av
	}
	return out, nil
}
