package domain

import "strconv"

// UnsupportedTypeText is the value rendered for kinds that are not materialized
const UnsupportedTypeText = "Unsupported type"

// Value is the materialized content of a key. The set of implementations is
// closed; callers switch over ScalarValue, MappingValue, SequenceValue,
// SetValue and UnsupportedValue.
type Value interface {
	// Raw returns the value in its plain JSON-friendly shape
	Raw() any
	isValue()
}

// ScalarValue holds a string key. Text is nil when the store returned no value.
type ScalarValue struct {
	Text *string
}

// MappingValue holds a hash. Field order is not meaningful.
type MappingValue struct {
	Fields map[string]string
}

// SequenceValue holds a bounded prefix of a list
type SequenceValue struct {
	Items []string
}

// SetValue holds set members in no particular order
type SetValue struct {
	Members []string
}

// UnsupportedValue marks a kind that is not materialized
type UnsupportedValue struct{}

func (v ScalarValue) Raw() any {
	if v.Text == nil {
		return nil
	}
	return *v.Text
}

func (v MappingValue) Raw() any {
	if v.Fields == nil {
		return map[string]string{}
	}
	return v.Fields
}

func (v SequenceValue) Raw() any {
	if v.Items == nil {
		return []string{}
	}
	return v.Items
}

func (v SetValue) Raw() any {
	if v.Members == nil {
		return []string{}
	}
	return v.Members
}

func (UnsupportedValue) Raw() any { return UnsupportedTypeText }

func (ScalarValue) isValue()      {}
func (MappingValue) isValue()     {}
func (SequenceValue) isValue()    {}
func (SetValue) isValue()         {}
func (UnsupportedValue) isValue() {}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
