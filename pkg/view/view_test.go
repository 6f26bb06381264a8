package view

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quyphuc2111/lanpeek/pkg/config"
)

func newTestViewer() *Viewer {
	cfg := config.Default()
	cfg.WebRTC.STUNServers = nil
	return NewViewer(cfg, nil, DiscardSink{}, nil)
}

func TestCandidatesBufferedBeforeOffer(t *testing.T) {
	v := newTestViewer()

	v.handleCandidate(json.RawMessage(`{"candidate":"candidate:1 1 udp 1 10.0.0.5 5000 typ host"}`))
	v.handleCandidate(json.RawMessage(`{"candidate":"candidate:2 1 udp 1 10.0.0.5 5001 typ host"}`))

	v.mu.Lock()
	defer v.mu.Unlock()
	require.Len(t, v.pending, 2)
	assert.Contains(t, v.pending[0].Candidate, "5000")
	assert.Contains(t, v.pending[1].Candidate, "5001")
}

func TestMalformedCandidateIgnored(t *testing.T) {
	v := newTestViewer()
	v.handleCandidate(json.RawMessage(`not json`))

	v.mu.Lock()
	defer v.mu.Unlock()
	assert.Empty(t, v.pending)
}

func TestViewerIDEmptyBeforeJoin(t *testing.T) {
	v := newTestViewer()
	assert.Empty(t, v.ViewerID())
}

func TestIVFSinkCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ivf")
	sink, err := NewIVFSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	assert.FileExists(t, path)
}
