package executor

import "github.com/google/uuid"

// IDGenerator returns a globally unique id carrying the given prefix.
type IDGenerator func(prefix string) string

// UUIDGenerator produces ids of the form "<prefix>_<uuid>".
func UUIDGenerator(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
