package share

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
)

// SampleWriter receives encoded video samples. Engine implements it.
type SampleWriter interface {
	WriteSample(sample media.Sample) error
}

// CaptureSource feeds encoded video into a SampleWriter until the
// context is cancelled or the source runs dry.
type CaptureSource interface {
	Stream(ctx context.Context, sink SampleWriter) error
}

// IVFSource streams VP8 frames from an IVF file at the file's own frame
// rate. With Loop set it restarts from the beginning on EOF, which makes
// a short capture usable as an endless test stream.
type IVFSource struct {
	Path string
	Loop bool
}

// Stream plays the file into sink.
func (s *IVFSource) Stream(ctx context.Context, sink SampleWriter) error {
	for {
		err := s.playOnce(ctx, sink)
		if err != nil || !s.Loop {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (s *IVFSource) playOnce(ctx context.Context, sink SampleWriter) error {
	file, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("open ivf file: %w", err)
	}
	defer file.Close()

	reader, header, err := ivfreader.NewWith(file)
	if err != nil {
		return fmt.Errorf("read ivf header: %w", err)
	}

	frameDuration := time.Millisecond * time.Duration(
		(float32(header.TimebaseNumerator)/float32(header.TimebaseDenominator))*1000)
	if frameDuration <= 0 {
		frameDuration = 33 * time.Millisecond
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			frame, _, err := reader.ParseNextFrame()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read ivf frame: %w", err)
			}
			if err := sink.WriteSample(media.Sample{
				Data:     frame,
				Duration: frameDuration,
			}); err != nil {
				return fmt.Errorf("write sample: %w", err)
			}
		}
	}
}
