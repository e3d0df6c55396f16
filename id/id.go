// Package id defines the TypeID-based job identifier.
//
// Job IDs are K-sortable (UUIDv7-based), globally unique and URL-safe in the
// format "job_suffix". They are assigned once at enqueue time and survive
// release, failure and replay unchanged.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// PrefixJob is the prefix of every job identifier.
const PrefixJob Prefix = "job"

// JobID identifies a job. The zero value is Nil.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type JobID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value JobID.
var Nil JobID

// NewJobID generates a new unique job ID.
func NewJobID() JobID {
	tid, err := typeid.Generate(string(PrefixJob))
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", PrefixJob, err))
	}

	return JobID{inner: tid, valid: true}
}

// ParseJobID parses a string such as "job_01h2xcejqtf2nbrexx3vqjhp41" and
// validates its prefix.
func ParseJobID(s string) (JobID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	if Prefix(tid.Prefix()) != PrefixJob {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", PrefixJob, tid.Prefix())
	}

	return JobID{inner: tid, valid: true}, nil
}

// MustParseJobID is like ParseJobID but panics on error.
func MustParseJobID(s string) JobID {
	parsed, err := ParseJobID(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// String returns "prefix_suffix", or "" for Nil.
func (i JobID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// IsNil reports whether this ID is the zero value.
func (i JobID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i JobID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *JobID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := ParseJobID(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}
