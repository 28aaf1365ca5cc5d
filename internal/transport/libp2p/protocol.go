// Package libp2p adapts internal/transport.PeerConnection onto a real
// libp2p host and stream, the way internal/p2p/node.go and data.go wire
// the goop2 desktop app's content/data protocols onto a libp2p stream.
package libp2p

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p/core/protocol"
)

// ProtoID is the stream protocol this engine's IQ traffic travels on.
// Each conversation link opens one long-lived stream on this protocol
// and frames messages with a 4-byte length prefix, since IQ payloads are
// opaque binary (codec-encoded) and can't use goop2's newline-delimited
// JSON framing.
const ProtoID = protocol.ID("/conversation-engine/iq/1.0.0")

const maxFrameSize = 16 << 20 // 16MiB, comfortably above DATA_WINDOW_SIZE chunks

// writeFrame writes a length-prefixed frame: 4-byte big-endian length
// followed by payload.
func writeFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one length-prefixed frame.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("libp2p: frame of %d bytes exceeds max %d", n, maxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
