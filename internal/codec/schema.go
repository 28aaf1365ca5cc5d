package codec

import "github.com/google/uuid"

// SchemaHeader identifies the exact wire or storage format of one record:
// together (ID, Version) key the codec registry that every descriptor
// variant and IQ message registers itself under.
type SchemaHeader struct {
	ID      uuid.UUID
	Version int
}

// MustUUID parses a UUID literal at init time. Panics on malformed input,
// which only happens if a schema constant below is mistyped.
func MustUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		panic("codec: invalid schema uuid literal " + s + ": " + err.Error())
	}
	return id
}
