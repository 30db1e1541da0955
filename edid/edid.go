// Package edid treats the monitor identity block as an opaque value: the raw
// 128 bytes plus the three string fields the core needs to reason about a
// display (manufacturer id, model name, ascii serial). The byte-level
// parser proper — descriptor block walking beyond these three fields,
// extension blocks, timing tables — is out of scope; this
// package decodes only what component D (Bus Registry) and the reconciler
// need to classify and report a display.
package edid

import (
	"github.com/rockowitz/ddcutil-sub002/ddcerr"
)

// Size is the length of a base EDID block.
const Size = 128

// descriptor tags, VESA E-EDID Standard §3.10.3.
const (
	tagSerialASCII  = 0xFF
	tagMonitorName  = 0xFC
	descriptorStart = 54
	descriptorLen   = 18
	descriptorCount = 4
)

var header = [8]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// EDID is the opaque identifier the core attaches to a BusInfo/DisplayRef.
type EDID struct {
	Raw        [Size]byte
	MfgID      string
	ModelName  string
	SerialText string
}

// Parse decodes raw into an EDID. Exactly 128 bytes is the only accepted
// length for a base block; 256-byte (extended) input is
// truncated to the base block for identity purposes by the caller before
// Parse ever sees it (see Truncate). A length other than 128 is rejected.
func Parse(raw []byte) (*EDID, error) {
	if len(raw) != Size {
		return nil, ddcerr.New("edid.parse", ddcerr.InvalidArgument)
	}
	var e EDID
	copy(e.Raw[:], raw)
	if err := verifyChecksum(e.Raw[:]); err != nil {
		return nil, err
	}
	e.MfgID = decodeMfgID(e.Raw[8], e.Raw[9])
	e.ModelName, e.SerialText = decodeDescriptors(&e.Raw)
	return &e, nil
}

// Truncate returns the first 128 bytes of raw. An extension-bearing 256-byte
// read truncates to the base block for identity comparisons.
func Truncate(raw []byte) []byte {
	if len(raw) <= Size {
		return raw
	}
	return raw[:Size]
}

// HasValidHeader reports whether raw starts with the fixed EDID header
// pattern, a cheap pre-check the sysfs probe uses before trusting an
// attribute's content as an EDID.
func HasValidHeader(raw []byte) bool {
	if len(raw) < len(header) {
		return false
	}
	for i, b := range header {
		if raw[i] != b {
			return false
		}
	}
	return true
}

func verifyChecksum(raw []byte) error {
	var sum byte
	for _, b := range raw {
		sum += b
	}
	if sum != 0 {
		return ddcerr.New("edid.checksum", ddcerr.EDIDChecksum)
	}
	return nil
}

func decodeMfgID(hi, lo byte) string {
	v := uint16(hi)<<8 | uint16(lo)
	l1 := byte((v>>10)&0x1F) + 'A' - 1
	l2 := byte((v>>5)&0x1F) + 'A' - 1
	l3 := byte(v&0x1F) + 'A' - 1
	return string([]byte{l1, l2, l3})
}

// decodeDescriptors scans the four 18-byte descriptor blocks for a monitor
// name (tag 0xFC) and an ascii serial number (tag 0xFF), the only two
// descriptor payloads this opaque view exposes.
func decodeDescriptors(raw *[Size]byte) (model, serial string) {
	for i := 0; i < descriptorCount; i++ {
		off := descriptorStart + i*descriptorLen
		d := raw[off : off+descriptorLen]
		// A descriptor is a detailed timing if bytes 0-1 are non-zero; only
		// zero-pixel-clock descriptors carry text tags.
		if d[0] != 0 || d[1] != 0 {
			continue
		}
		tag := d[3]
		text := trimDescriptorText(d[5:18])
		switch tag {
		case tagMonitorName:
			model = text
		case tagSerialASCII:
			serial = text
		}
	}
	return model, serial
}

func trimDescriptorText(b []byte) string {
	n := len(b)
	for i, c := range b {
		if c == 0x0A {
			n = i
			break
		}
	}
	return string(b[:n])
}
