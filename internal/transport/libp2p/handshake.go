package libp2p

import (
	"bufio"
	"encoding/json"
)

// handshake is exchanged once, as a newline-delimited JSON line, when a
// stream opens — before any binary IQ frame. It's the same shape as
// goop2's presence/data JSON messages, just enough to let the accepting
// side build the right Connection and negotiate protocol versions
// (spec.md §4.3) without a dedicated IQ round-trip.
type handshake struct {
	ConversationId int64  `json:"conv"`
	OurTwincode    string `json:"our"`
	PeerTwincode   string `json:"peer"`
	MaxMajor       int    `json:"max_major"`
	MaxMinor       int    `json:"max_minor"`
}

func writeHandshake(bw *bufio.Writer, h handshake) error {
	b, err := json.Marshal(h)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := bw.Write(b); err != nil {
		return err
	}
	return bw.Flush()
}

func readHandshake(br *bufio.Reader) (handshake, error) {
	var h handshake
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, err
	}
	return h, nil
}
