package iq

import "github.com/petervdpas/conversation-engine/internal/transport"

// Version is a (major, minor) protocol version pair, used for the
// request-level minimum-supported-peer-version gate (spec.md §4.3).
type Version struct {
	Major, Minor int
}

// Minimum supported peer versions per request family (spec.md §4.3).
var (
	MinVersionCore          = Version{2, 7}  // Reset/Push{Object,File,Geolocation}/UpdateDescriptorTimestamp/transient
	MinVersionGroupAndShare = Version{2, 12} // group membership IQs, PushTwincode, PushCommand
	MinVersionAnnotations   = Version{2, 18} // UpdateAnnotations
	MinVersionUpdateObject  = Version{2, 20} // UpdateDescriptor / UPDATE_OBJECT
)

// requiredVersion returns the minimum peer version a request Kind needs.
func requiredVersion(k Kind) Version {
	switch k {
	case KindUpdateDescriptor:
		return MinVersionUpdateObject
	case KindUpdateAnnotations:
		return MinVersionAnnotations
	case KindInviteGroup, KindRevokeInviteGroup, KindJoinGroup, KindLeaveGroup,
		KindUpdateGroupMember, KindPushTwincode, KindPushCommand:
		return MinVersionGroupAndShare
	default:
		return MinVersionCore
	}
}

// PeerSupports reports whether conn's negotiated peer version meets the
// minimum required for request Kind k (spec.md §4.3 version gating).
func PeerSupports(conn transport.PeerConnection, k Kind) bool {
	v := requiredVersion(k)
	return conn.IsSupported(v.Major, v.Minor)
}
