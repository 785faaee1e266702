package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// KeyKind is the store's data-type tag for a key
type KeyKind string

const (
	KindString      KeyKind = "string"
	KindHash        KeyKind = "hash"
	KindList        KeyKind = "list"
	KindSet         KeyKind = "set"
	KindSortedSet   KeyKind = "sortedset"
	KindUnsupported KeyKind = "unsupported"
)

// ParseKeyKind maps a TYPE reply onto a KeyKind.
// Unknown replies (stream, module types, ...) map to KindUnsupported.
func ParseKeyKind(s string) KeyKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string":
		return KindString
	case "hash":
		return KindHash
	case "list":
		return KindList
	case "set":
		return KindSet
	case "zset", "sortedset":
		return KindSortedSet
	default:
		return KindUnsupported
	}
}

// SizePlaceholder is shown when a key's size cannot be determined
const SizePlaceholder = "—"

const secondsPerDay = 86400

// KeyInfo holds the metadata shown for a key in listings
type KeyInfo struct {
	Name           string    `json:"key"`
	Kind           KeyKind   `json:"type"`
	TTLSeconds     *int64    `json:"ttl"`
	ExpireInDays   *int64    `json:"daysToExpire"`
	Size           string    `json:"size"`
	LastObservedAt time.Time `json:"lastModified"`
}

// SetTTL records the remaining time to live. Anything under one whole
// second is treated as no expiration; ExpireInDays is kept in step.
func (k *KeyInfo) SetTTL(ttl time.Duration, ok bool) {
	k.TTLSeconds = nil
	k.ExpireInDays = nil
	if !ok {
		return
	}
	secs := int64(ttl / time.Second)
	if secs <= 0 {
		return
	}
	days := (secs + secondsPerDay - 1) / secondsPerDay
	k.TTLSeconds = &secs
	k.ExpireInDays = &days
}

// HasExpiry reports whether the key carries a TTL
func (k *KeyInfo) HasExpiry() bool {
	return k.TTLSeconds != nil
}

// FormatSize renders the human readable size descriptor for a kind.
func FormatSize(kind KeyKind, n int64) string {
	switch kind {
	case KindString:
		return itoa(n) + " B"
	case KindHash:
		return itoa(n) + " fields"
	case KindList:
		return itoa(n) + " items"
	case KindSet:
		return itoa(n) + " members"
	default:
		return SizePlaceholder
	}
}

// KeyValue is a key's metadata together with its materialized value
type KeyValue struct {
	KeyInfo
	Value Value
	// RawScalar duplicates the string value for direct access; nil for other kinds
	RawScalar *string
}

// MarshalJSON flattens the metadata and renders Value in its natural JSON shape
func (kv KeyValue) MarshalJSON() ([]byte, error) {
	type wire struct {
		KeyInfo
		Value     any     `json:"value"`
		RawString *string `json:"rawString"`
	}
	var v any
	if kv.Value != nil {
		v = kv.Value.Raw()
	}
	return json.Marshal(wire{KeyInfo: kv.KeyInfo, Value: v, RawString: kv.RawScalar})
}

// KeyWriteSpec describes a desired key state for the mutation pipeline
type KeyWriteSpec struct {
	Name       string
	Kind       string
	Payload    string
	TTLSeconds *int64
}

// Expiry returns the requested TTL; ok is false when no expiration is wanted
func (s KeyWriteSpec) Expiry() (time.Duration, bool) {
	if s.TTLSeconds == nil || *s.TTLSeconds <= 0 {
		return 0, false
	}
	return time.Duration(*s.TTLSeconds) * time.Second, true
}

// KeysPage is one pagination window over the keys matching a pattern
type KeysPage struct {
	Items    []KeyInfo `json:"items"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
}

// TotalPages returns the number of pages needed to cover Total
func (p *KeysPage) TotalPages() int64 {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.Total + int64(p.PageSize) - 1) / int64(p.PageSize)
}

// ServerInfo is a short summary of the store instance
type ServerInfo struct {
	Version          string `json:"version"`
	UsedMemory       string `json:"used_memory"`
	ConnectedClients string `json:"connected_clients"`
}

// UnknownServerInfo is returned when the store cannot describe itself
func UnknownServerInfo() ServerInfo {
	return ServerInfo{Version: "Unknown", UsedMemory: "Unknown", ConnectedClients: "0"}
}
