package wikibase

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entity does not exist in the store.
var ErrNotFound = errors.New("entity not found")

// TransportError is a network or HTTP level failure talking to a remote service.
type TransportError struct {
	Service string // "api" or "sparql"
	Op      string
	Status  int // 0 when no response was received
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: unexpected status %d: %v", e.Service, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError means a response could not be decoded into the
// expected shape.
type MalformedResponseError struct {
	Service string
	Op      string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s %s: malformed response: %v", e.Service, e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// LabelConflictError is returned by Create when another entity already owns
// the label. ExistingID is the identifier of that entity.
type LabelConflictError struct {
	Label      string
	ExistingID string
}

func (e *LabelConflictError) Error() string {
	return fmt.Sprintf("%q already exists, id = %s", e.Label, e.ExistingID)
}

// WriteError is any other rejection from the write API.
type WriteError struct {
	Op     string
	Status int
	Code   string
	Info   string
}

func (e *WriteError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("api %s: error '%s': %s", e.Op, e.Code, e.Info)
	case e.Status != 0:
		return fmt.Sprintf("api %s: unexpected status %d: %s", e.Op, e.Status, e.Info)
	}
	return fmt.Sprintf("api %s: %s", e.Op, e.Info)
}
