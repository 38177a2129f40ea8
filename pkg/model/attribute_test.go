package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    any
		wantErr error
	}{
		{"string", `{"S":"Jane"}`, "Jane", nil},
		{"number", `{"N":"42.5"}`, 42.5, nil},
		{"string set", `{"SS":["traditional","tribal"]}`, []string{"traditional", "tribal"}, nil},
		{"number set", `{"NS":["1","2"]}`, []float64{1, 2}, nil},
		{"bool", `{"BOOL":true}`, true, nil},
		{"null", `{"NULL":true}`, nil, nil},
		{"list", `{"L":[{"S":"a"},{"N":"1"}]}`, []any{"a", float64(1)}, nil},
		{"map", `{"M":{"city":{"S":"London"}}}`, map[string]any{"city": "London"}, nil},
		{"unknown tag", `{"B":"AAEC"}`, nil, ErrUnknownAttributeTag},
		{"unknown nested tag", `{"L":[{"BS":["AA"]}]}`, nil, ErrUnknownAttributeTag},
		{"no tag", `{}`, nil, ErrMalformedAttribute},
		{"two tags", `{"S":"a","N":"1"}`, nil, ErrMalformedAttribute},
		{"bad number", `{"N":"forty"}`, nil, ErrMalformedAttribute},
		{"wrong payload type", `{"S":12}`, nil, ErrMalformedAttribute},
		{"not an object", `"Jane"`, nil, ErrMalformedAttribute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var av AttributeValue
			err := json.Unmarshal([]byte(tt.input), &av)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			got, err := av.Decode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAttributeValue_DecodeRejectsUnknownKind(t *testing.T) {
	_, err := AttributeValue{Kind: "BS"}.Decode()
	assert.ErrorIs(t, err, ErrUnknownAttributeTag)

	_, err = AttributeValue{}.Decode()
	assert.ErrorIs(t, err, ErrMalformedAttribute)
}

func TestDecodeImage(t *testing.T) {
	img := map[string]AttributeValue{
		"name":   StringValue("Jane"),
		"styles": StringSetValue("traditional", "tribal"),
		"rating": NumberValue(4.5),
	}
	out, err := DecodeImage(img)
	require.NoError(t, err)
	assert.Equal(t, "Jane", out["name"])
	assert.Equal(t, []string{"traditional", "tribal"}, out["styles"])
	assert.Equal(t, 4.5, out["rating"])

	img["bad"] = AttributeValue{Kind: "XX"}
	_, err = DecodeImage(img)
	assert.ErrorIs(t, err, ErrUnknownAttributeTag)
	assert.Contains(t, err.Error(), "attribute bad")
}

func TestEncodeValue(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	img, err := EncodeImage(map[string]any{
		"name":    "Jane",
		"styles":  []string{"tribal"},
		"tags":    []any{"a", 1},
		"count":   3,
		"active":  true,
		"removed": nil,
		"seen":    ts,
		"meta":    map[string]any{"k": "v"},
	})
	require.NoError(t, err)

	assert.Equal(t, KindString, img["name"].Kind)
	assert.Equal(t, KindStringSet, img["styles"].Kind)
	assert.Equal(t, KindList, img["tags"].Kind)
	assert.Equal(t, AttributeValue{Kind: KindNumber, S: "3"}, img["count"])
	assert.Equal(t, KindBool, img["active"].Kind)
	assert.Equal(t, KindNull, img["removed"].Kind)
	assert.Equal(t, "2024-01-02T03:04:05Z", img["seen"].S)
	assert.Equal(t, KindMap, img["meta"].Kind)

	_, err = EncodeValue(struct{}{})
	assert.ErrorIs(t, err, ErrMalformedAttribute)
}

func TestAttributeValue_JSONRoundTrip(t *testing.T) {
	evt := NewChangeEvent(EventCreated, RecordKey{PK: "ARTIST#42", SK: ProfileSK}, map[string]AttributeValue{
		"name":   StringValue("Jane"),
		"styles": StringSetValue("traditional", "tribal"),
	}, nil)

	data, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"eventName": "Created",
		"Keys": {"PK": {"S": "ARTIST#42"}, "SK": {"S": "PROFILE"}},
		"NewImage": {"name": {"S": "Jane"}, "styles": {"SS": ["traditional", "tribal"]}}
	}`, string(data))

	var back ChangeEvent
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, evt, back)
}
