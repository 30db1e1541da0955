package edid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockowitz/ddcutil-sub002/ddcerr"
	"github.com/rockowitz/ddcutil-sub002/edid"
)

// buildRaw constructs a syntactically valid 128-byte EDID with the given
// manufacturer id letters, model name and serial, and a correct checksum.
func buildRaw(t *testing.T, mfg [3]byte, model, serial string) []byte {
	t.Helper()
	raw := make([]byte, edid.Size)
	copy(raw[0:8], []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00})

	l1, l2, l3 := mfg[0]-'A'+1, mfg[1]-'A'+1, mfg[2]-'A'+1
	v := uint16(l1)<<10 | uint16(l2)<<5 | uint16(l3)
	raw[8] = byte(v >> 8)
	raw[9] = byte(v)

	writeDescriptor(raw, 0, 0xFC, model)
	writeDescriptor(raw, 1, 0xFF, serial)

	var sum byte
	for i := 0; i < edid.Size-1; i++ {
		sum += raw[i]
	}
	raw[edid.Size-1] = byte(256 - int(sum)%256)
	return raw
}

func writeDescriptor(raw []byte, slot int, tag byte, text string) {
	off := 54 + slot*18
	raw[off] = 0
	raw[off+1] = 0
	raw[off+2] = 0
	raw[off+3] = tag
	raw[off+4] = 0
	payload := raw[off+5 : off+18]
	for i := range payload {
		payload[i] = 0x20
	}
	copy(payload, text)
	if len(text) < len(payload) {
		payload[len(text)] = 0x0A
	}
}

func TestParseRoundTrip(t *testing.T) {
	raw := buildRaw(t, [3]byte{'A', 'C', 'I'}, "TestMonitor", "SN12345")
	e, err := edid.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "ACI", e.MfgID)
	assert.Equal(t, "TestMonitor", e.ModelName)
	assert.Equal(t, "SN12345", e.SerialText)
	assert.Equal(t, raw, e.Raw[:])
}

func TestParseRejectsWrongLength(t *testing.T) {
	_, err := edid.Parse(make([]byte, 127))
	require.Error(t, err)
	assert.True(t, ddcerr.Is(err, ddcerr.InvalidArgument))

	raw := buildRaw(t, [3]byte{'A', 'C', 'I'}, "M", "S")
	_, err = edid.Parse(raw[:edid.Size]) // 128: accepted
	assert.NoError(t, err)
}

func TestParseRejectsBadChecksum(t *testing.T) {
	raw := buildRaw(t, [3]byte{'A', 'C', 'I'}, "M", "S")
	raw[edid.Size-1]++
	_, err := edid.Parse(raw)
	require.Error(t, err)
	assert.True(t, ddcerr.Is(err, ddcerr.EDIDChecksum))
}

func TestTruncate(t *testing.T) {
	raw256 := make([]byte, 256)
	copy(raw256, buildRaw(t, [3]byte{'A', 'C', 'I'}, "M", "S"))
	got := edid.Truncate(raw256)
	assert.Len(t, got, edid.Size)
	assert.Equal(t, raw256[:edid.Size], got)
}

func TestHasValidHeader(t *testing.T) {
	raw := buildRaw(t, [3]byte{'A', 'C', 'I'}, "M", "S")
	assert.True(t, edid.HasValidHeader(raw))
	raw[0] = 1
	assert.False(t, edid.HasValidHeader(raw))
}
