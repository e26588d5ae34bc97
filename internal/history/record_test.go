package history

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_RecognizedFieldsWinOverExtensions(t *testing.T) {
	rec := Record{
		Documents:  []json.RawMessage{json.RawMessage(`"d1"`)},
		Extensions: map[string]json.RawMessage{"documents": json.RawMessage(`"shadow"`), "mode": json.RawMessage(`"edit"`)},
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"documents":["d1"],"clips":[],"events":[],"mode":"edit"}`, string(data))
}

func TestRecord_ZeroValueMarshalsWithEmptySequences(t *testing.T) {
	data, err := json.Marshal(Record{})
	require.NoError(t, err)
	assert.JSONEq(t, emptyJSON, string(data))
}

func TestRecord_MergeDoesNotMutateReceiver(t *testing.T) {
	base := Empty()
	base.Extensions = map[string]json.RawMessage{"a": json.RawMessage(`1`)}

	merged, err := base.Merge(Patch{"a": 2, "b": true, "events": []string{"e1"}})
	require.NoError(t, err)

	assert.JSONEq(t, `1`, string(base.Extensions["a"]))
	assert.NotContains(t, base.Extensions, "b")
	assert.Empty(t, base.Events)

	assert.JSONEq(t, `2`, string(merged.Extensions["a"]))
	assert.JSONEq(t, `true`, string(merged.Extensions["b"]))
	require.Len(t, merged.Events, 1)
	assert.JSONEq(t, `"e1"`, string(merged.Events[0]))
}

func TestRecord_MergeAcceptsRawJSON(t *testing.T) {
	merged, err := Empty().Merge(Patch{
		"documents": json.RawMessage(`[{"id": "d1"}, {"id": "d2"}]`),
		"note":      json.RawMessage(`{"text": "hi"}`),
	})
	require.NoError(t, err)

	require.Len(t, merged.Documents, 2)
	assert.JSONEq(t, `{"id":"d1"}`, string(merged.Documents[0]))
	assert.JSONEq(t, `{"text":"hi"}`, string(merged.Extensions["note"]))
}

func TestRecord_UnmarshalKeepsUnknownFields(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{"events":[1],"version":3}`), &rec))

	assert.Empty(t, rec.Documents)
	assert.NotNil(t, rec.Documents)
	assert.Len(t, rec.Events, 1)
	assert.JSONEq(t, `3`, string(rec.Extensions["version"]))
}
