package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Recognized top-level fields. Every other key is kept in Record.Extensions.
const (
	FieldDocuments = "documents"
	FieldClips     = "clips"
	FieldEvents    = "events"
)

var errNotObject = errors.New("history record is not a JSON object")

// Record is the single persisted history value. Sequence elements are opaque
// JSON descriptors owned by the callers that write them.
type Record struct {
	Documents  []json.RawMessage
	Clips      []json.RawMessage
	Events     []json.RawMessage
	Extensions map[string]json.RawMessage
}

// Empty returns the default record: three empty sequences, no extensions.
func Empty() Record {
	return Record{
		Documents: []json.RawMessage{},
		Clips:     []json.RawMessage{},
		Events:    []json.RawMessage{},
	}
}

// MarshalJSON writes a flat object. Recognized fields are always present and
// win over an extension with the same name.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Extensions)+3)
	maps.Copy(out, r.Extensions)

	for name, seq := range map[string][]json.RawMessage{
		FieldDocuments: r.Documents,
		FieldClips:     r.Clips,
		FieldEvents:    r.Events,
	} {
		if seq == nil {
			seq = []json.RawMessage{}
		}
		data, err := json.Marshal(seq)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", name, err)
		}
		out[name] = data
	}
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errNotObject
	}

	var rec Record
	var err error
	if rec.Documents, err = takeSequence(raw, FieldDocuments); err != nil {
		return err
	}
	if rec.Clips, err = takeSequence(raw, FieldClips); err != nil {
		return err
	}
	if rec.Events, err = takeSequence(raw, FieldEvents); err != nil {
		return err
	}
	if len(raw) > 0 {
		rec.Extensions = raw
	}
	*r = rec
	return nil
}

// takeSequence removes name from raw and decodes it. Missing and null values
// become an empty sequence.
func takeSequence(raw map[string]json.RawMessage, name string) ([]json.RawMessage, error) {
	v, ok := raw[name]
	delete(raw, name)
	return decodeSequence(name, v, ok)
}

func decodeSequence(name string, v json.RawMessage, present bool) ([]json.RawMessage, error) {
	if !present || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return []json.RawMessage{}, nil
	}
	var seq []json.RawMessage
	if err := json.Unmarshal(v, &seq); err != nil {
		return nil, fmt.Errorf("field %s must be an array: %w", name, err)
	}
	if seq == nil {
		seq = []json.RawMessage{}
	}
	return seq, nil
}

// Clone returns a copy that shares no slices or maps with r.
func (r Record) Clone() Record {
	return Record{
		Documents:  slices.Clone(r.Documents),
		Clips:      slices.Clone(r.Clips),
		Events:     slices.Clone(r.Events),
		Extensions: maps.Clone(r.Extensions),
	}
}

// Patch is a partial record. Each value is JSON-encoded on merge; values for
// the recognized fields must encode to an array or null.
type Patch map[string]any

// Merge applies p over r. Keys in p replace the existing value entirely.
func (r Record) Merge(p Patch) (Record, error) {
	merged := r.Clone()

	keys := slices.Sorted(maps.Keys(p))
	for _, key := range keys {
		data, err := json.Marshal(p[key])
		if err != nil {
			return Record{}, fmt.Errorf("%w: encode %s: %v", ErrInvalidPatch, key, err)
		}

		switch key {
		case FieldDocuments, FieldClips, FieldEvents:
			seq, err := decodeSequence(key, data, true)
			if err != nil {
				return Record{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
			}
			switch key {
			case FieldDocuments:
				merged.Documents = seq
			case FieldClips:
				merged.Clips = seq
			case FieldEvents:
				merged.Events = seq
			}
		default:
			if merged.Extensions == nil {
				merged.Extensions = make(map[string]json.RawMessage)
			}
			merged.Extensions[key] = data
		}
	}
	return merged, nil
}
