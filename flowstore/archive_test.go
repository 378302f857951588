package flowstore

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowcanvas/errors"
)

func TestArchiveCodec_RoundTrip(t *testing.T) {
	codec, err := NewArchiveCodec()
	require.NoError(t, err)
	defer codec.Close()

	doc := validDoc()
	doc.ID = "f1"
	doc.SchemaVersion = SchemaVersion
	doc.Version = 3
	doc.CreatedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc.Nodes[0].Params = map[string]any{
		"ratio":  0.5,
		"flag":   true,
		"nested": map[string]any{"list": []any{"a", 2.0}},
	}
	doc.normalize()

	data, err := codec.Encode(doc)
	require.NoError(t, err)

	got, err := codec.Decode(data)
	require.NoError(t, err)
	if diff := cmp.Diff(doc, got, cmpopts.EquateApproxTime(0)); diff != "" {
		t.Errorf("archive round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestArchiveCodec_RejectsForeignData(t *testing.T) {
	codec, err := NewArchiveCodec()
	require.NoError(t, err)
	defer codec.Close()

	_, err = codec.Decode([]byte(`{"nodes":[]}`))
	assert.ErrorIs(t, err, errors.ErrDataCorrupted)

	_, err = codec.Decode(append([]byte("FCA1"), 0x01, 0x02))
	assert.ErrorIs(t, err, errors.ErrDataCorrupted)
}
