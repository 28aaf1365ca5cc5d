package descriptor

// Type is the persisted, stable type code for a descriptor variant
// (spec.md §3.2). Values must never be renumbered: they are written to the
// `descriptor.descriptorType` column and to the wire.
type Type byte

const (
	TypeDescriptor  Type = 1 // base envelope only, never constructed directly
	TypeObject      Type = 2 // text message
	TypeTransient   Type = 3 // transient sidecar, never persisted
	TypeFile        Type = 4
	TypeImage       Type = 5
	TypeAudio       Type = 6
	TypeVideo       Type = 7
	TypeNamedFile   Type = 8
	TypeInvitation  Type = 9
	TypeGeolocation Type = 10
	TypeTwincode    Type = 11
	TypeCall        Type = 12
	TypeClear       Type = 13
)

func (t Type) String() string {
	switch t {
	case TypeDescriptor:
		return "Descriptor"
	case TypeObject:
		return "Object"
	case TypeTransient:
		return "Transient"
	case TypeFile:
		return "File"
	case TypeImage:
		return "Image"
	case TypeAudio:
		return "Audio"
	case TypeVideo:
		return "Video"
	case TypeNamedFile:
		return "NamedFile"
	case TypeInvitation:
		return "Invitation"
	case TypeGeolocation:
		return "Geolocation"
	case TypeTwincode:
		return "Twincode"
	case TypeCall:
		return "Call"
	case TypeClear:
		return "Clear"
	default:
		return "Unknown"
	}
}

// IsFileBearing reports whether this variant carries an on-disk blob and
// must have its file unlinked from the application's files directory on
// delete (spec.md §4.2).
func (t Type) IsFileBearing() bool {
	switch t {
	case TypeFile, TypeImage, TypeAudio, TypeVideo, TypeNamedFile:
		return true
	default:
		return false
	}
}
