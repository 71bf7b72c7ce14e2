package kv

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Kind tells which stored shape DecodeEnvelope recognised
type Kind int

const (
	// KindEnvelope is the current {writtenAt, ttlMillis, payload} shape
	KindEnvelope Kind = iota
	// KindLegacy is the older {timestamp, data} shape with no TTL recorded
	KindLegacy
	// KindBare is any other JSON value, or a raw string stored without a wrapper
	KindBare
)

func (k Kind) String() string {
	switch k {
	case KindEnvelope:
		return "envelope"
	case KindLegacy:
		return "legacy"
	default:
		return "bare"
	}
}

// Envelope wraps a payload with its write time and soft TTL, both in
// milliseconds. Expiry is evaluated by the reader.
type Envelope struct {
	WrittenAt int64           `json:"writtenAt"`
	TTLMillis int64           `json:"ttlMillis"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into an envelope written at now
func NewEnvelope(payload any, ttl time.Duration, now time.Time) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		WrittenAt: now.UnixMilli(),
		TTLMillis: ttl.Milliseconds(),
		Payload:   data,
	}, nil
}

// Written returns WrittenAt as a time
func (e Envelope) Written() time.Time {
	return time.UnixMilli(e.WrittenAt)
}

// Expired reports whether now is past writtenAt+ttlMillis. An envelope
// without a TTL is always expired.
func (e Envelope) Expired(now time.Time) bool {
	if e.TTLMillis <= 0 {
		return true
	}
	return now.UnixMilli() > e.WrittenAt+e.TTLMillis
}

// OlderThan reports whether the entry was written before now-age.
// Entries without a write time are never considered old.
func (e Envelope) OlderThan(age time.Duration, now time.Time) bool {
	if e.WrittenAt <= 0 {
		return false
	}
	return e.WrittenAt < now.Add(-age).UnixMilli()
}

var errEmptyValue = errors.New("empty value")

// DecodeEnvelope translates any stored value into an Envelope. Values that
// are neither shape come back as KindBare with the value as payload; a
// non-JSON value is carried as a JSON string.
func DecodeEnvelope(raw []byte) (Envelope, Kind, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Envelope{}, KindBare, errEmptyValue
	}

	if trimmed[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err == nil {
			if payload, ok := fields["payload"]; ok {
				if payload == nil {
					payload = json.RawMessage("null")
				}
				if at, ok := millis(fields["writtenAt"]); ok {
					ttl, _ := millis(fields["ttlMillis"])
					return Envelope{WrittenAt: at, TTLMillis: ttl, Payload: payload}, KindEnvelope, nil
				}
			}
			if data, ok := fields["data"]; ok {
				if at, ok := millis(fields["timestamp"]); ok {
					return Envelope{WrittenAt: at, Payload: data}, KindLegacy, nil
				}
			}
		}
	}

	if json.Valid(trimmed) {
		return Envelope{Payload: json.RawMessage(trimmed)}, KindBare, nil
	}

	quoted, err := json.Marshal(string(raw))
	if err != nil {
		return Envelope{}, KindBare, err
	}
	return Envelope{Payload: quoted}, KindBare, nil
}

func millis(raw json.RawMessage) (int64, bool) {
	if raw == nil {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return int64(f), true
}

// samePayload compares two JSON documents after compaction
func samePayload(a, b []byte) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
