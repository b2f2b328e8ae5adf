// Package keys defines the key layout inside a shard.
//
//	field index: fi \0 FIELD \0 normalizedValue \0 datatype \0 uid
//	event:       d  \0 datatype \0 uid \0 FIELD \0 rawValue
//
// Components must not contain the zero byte. Iterators address documents by
// DocKey, "datatype \0 uid", which sorts like the tail of a field index key.
package keys

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const (
	sep = "\x00"

	fieldIndexTag = "fi"
	eventTag      = "d"
)

var ErrMalformedKey = errors.New("malformed key")

// DocKey identifies a document within a shard.
type DocKey string

func NewDocKey(dataType, uid string) DocKey {
	return DocKey(dataType + sep + uid)
}

// ParseDocKey splits k into its data type and uid.
func ParseDocKey(k DocKey) (dataType, uid string, err error) {
	dataType, uid, ok := strings.Cut(string(k), sep)
	if !ok || dataType == "" || uid == "" {
		return "", "", fmt.Errorf("%w: document key %q", ErrMalformedKey, string(k))
	}
	return dataType, uid, nil
}

func (k DocKey) DataType() string {
	dataType, _, _ := strings.Cut(string(k), sep)
	return dataType
}

func (k DocKey) UID() string {
	_, uid, _ := strings.Cut(string(k), sep)
	return uid
}

func (k DocKey) String() string {
	return strings.ReplaceAll(string(k), sep, "/")
}

// Successor returns the smallest key sorting after k.
func (k DocKey) Successor() DocKey {
	return k + sep
}

// DataTypeStart returns the first possible key of dataType.
func DataTypeStart(dataType string) DocKey {
	return DocKey(dataType + sep)
}

// Validate rejects components that would break the layout.
func Validate(components ...string) error {
	for _, c := range components {
		if strings.Contains(c, sep) {
			return fmt.Errorf("%w: component %q contains a zero byte", ErrMalformedKey, c)
		}
	}
	return nil
}

func join(parts ...string) []byte {
	return []byte(strings.Join(parts, sep))
}

// FieldIndexKey is a decoded field index key.
type FieldIndexKey struct {
	Field    string
	Value    string
	DataType string
	UID      string
}

func (k FieldIndexKey) Bytes() []byte {
	return FieldIndex(k.Field, k.Value, k.DataType, k.UID)
}

func (k FieldIndexKey) DocKey() DocKey {
	return NewDocKey(k.DataType, k.UID)
}

// FieldIndex returns the field index key for one value of a document.
func FieldIndex(field, normalized, dataType, uid string) []byte {
	return join(fieldIndexTag, field, normalized, dataType, uid)
}

// FieldIndexFieldPrefix returns the prefix shared by every index key of field.
func FieldIndexFieldPrefix(field string) []byte {
	return join(fieldIndexTag, field, "")
}

// FieldIndexValuePrefix returns the prefix shared by every posting of
// field == normalized. Appending a DocKey yields the posting's key.
func FieldIndexValuePrefix(field, normalized string) []byte {
	return join(fieldIndexTag, field, normalized, "")
}

// ParseFieldIndex decodes a field index key.
func ParseFieldIndex(key []byte) (FieldIndexKey, error) {
	parts := strings.Split(string(key), sep)
	if len(parts) != 5 || parts[0] != fieldIndexTag {
		return FieldIndexKey{}, fmt.Errorf("%w: field index key %q", ErrMalformedKey, key)
	}
	return FieldIndexKey{Field: parts[1], Value: parts[2], DataType: parts[3], UID: parts[4]}, nil
}

// EventKey is a decoded event key.
type EventKey struct {
	DataType string
	UID      string
	Field    string
	Value    string
}

func (k EventKey) Bytes() []byte {
	return Event(k.DataType, k.UID, k.Field, k.Value)
}

func (k EventKey) DocKey() DocKey {
	return NewDocKey(k.DataType, k.UID)
}

// Event returns the event key for one raw value of a document field.
func Event(dataType, uid, field, raw string) []byte {
	return join(eventTag, dataType, uid, field, raw)
}

// EventPrefix returns the prefix shared by every event key.
func EventPrefix() []byte {
	return join(eventTag, "")
}

// EventDataTypePrefix returns the prefix shared by every event key of dataType.
func EventDataTypePrefix(dataType string) []byte {
	return join(eventTag, dataType, "")
}

// EventDocumentPrefix returns the prefix shared by every event key of one
// document. Descendant documents do not share it.
func EventDocumentPrefix(k DocKey) []byte {
	return join(eventTag, string(k), "")
}

// EventDocKeyStart returns the first event key of the first document at or
// after k. A successor key skips every event of the document it follows.
func EventDocKeyStart(k DocKey) []byte {
	start := join(eventTag, string(k))
	if strings.HasSuffix(string(k), sep) {
		return PrefixEnd(start)
	}
	return start
}

// ParseEvent decodes an event key.
func ParseEvent(key []byte) (EventKey, error) {
	parts := strings.SplitN(string(key), sep, 5)
	if len(parts) != 5 || parts[0] != eventTag {
		return EventKey{}, fmt.Errorf("%w: event key %q", ErrMalformedKey, key)
	}
	return EventKey{DataType: parts[1], UID: parts[2], Field: parts[3], Value: parts[4]}, nil
}

// PrefixEnd returns the smallest key greater than every key with prefix, or
// nil if there is none.
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
