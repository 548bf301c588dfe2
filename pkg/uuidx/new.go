package uuidx

import "github.com/google/uuid"

// New generates a new UUID using the version 7 format and returns it.
// Version 7 identifiers sort by creation time, so logs of messages and offers
// read in the order they were produced. It panics if the UUID generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a new UUID using the version 7 format and returns it as a string.
func NewString() string {
	return New().String()
}

// Short returns a prefixed, human friendly identifier such as "task-3f9a1c2b".
// The suffix is the random tail of a version 7 UUID, not the timestamp head,
// so identifiers created in the same millisecond still differ.
func Short(prefix string) string {
	s := New().String()
	return prefix + "-" + s[len(s)-8:]
}
