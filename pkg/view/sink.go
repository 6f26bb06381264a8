package view

import (
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/ivfwriter"
)

// NewIVFSink records the received VP8 track to an IVF file.
func NewIVFSink(path string) (TrackSink, error) {
	writer, err := ivfwriter.New(path)
	if err != nil {
		return nil, fmt.Errorf("create ivf file: %w", err)
	}
	return writer, nil
}

// DiscardSink drops every packet. Useful for connectivity checks where
// only the session itself matters.
type DiscardSink struct{}

func (DiscardSink) WriteRTP(*rtp.Packet) error { return nil }
func (DiscardSink) Close() error               { return nil }
