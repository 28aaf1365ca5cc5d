package descriptor

import "github.com/google/uuid"

// AnnotationKind is the persisted, stable code for an annotation kind
// (spec.md §3.2).
type AnnotationKind byte

const (
	AnnotationForward   AnnotationKind = 1
	AnnotationForwarded AnnotationKind = 2
	AnnotationSave      AnnotationKind = 3
	AnnotationLike      AnnotationKind = 4
	AnnotationPoll      AnnotationKind = 5
)

func (k AnnotationKind) String() string {
	switch k {
	case AnnotationForward:
		return "Forward"
	case AnnotationForwarded:
		return "Forwarded"
	case AnnotationSave:
		return "Save"
	case AnnotationLike:
		return "Like"
	case AnnotationPoll:
		return "Poll"
	default:
		return "Unknown"
	}
}

// Annotation is a single stored tag attached to a descriptor by one
// participant (spec.md §3.2). PeerTwincodeOutboundId is nil for our own
// annotation.
type Annotation struct {
	ConversationDbId       DatabaseId
	DescriptorDbId         DatabaseId
	PeerTwincodeOutboundId *uuid.UUID // nil means "our own annotation"
	Kind                   AnnotationKind
	Value                  int32
	CreationDate           int64
	NotificationId         *int64
}
