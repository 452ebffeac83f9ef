// Package dicom reads the DICOM Part 10 file wrapper so that the data set
// inside can be sent with C-STORE.
package dicom

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"

	dicomerrors "github.com/caio-sobreiro/dicomassoc/errors"
	dlog "github.com/caio-sobreiro/dicomassoc/logger"
)

const (
	preambleLength = 128
	prefix         = "DICM"
	metaGroup      = 0x0002
)

// File Meta Information elements read from the header.
const (
	tagMediaStorageSOPClassUID    = 0x0002
	tagMediaStorageSOPInstanceUID = 0x0003
	tagTransferSyntaxUID          = 0x0010
)

// File is a Part 10 file split into its meta information and data set.
type File struct {
	MediaStorageSOPClassUID    string
	MediaStorageSOPInstanceUID string
	TransferSyntaxUID          string
	// DataSet aliases the input buffer.
	DataSet []byte
}

// longLengthVR are the explicit VRs with a reserved field and a 32-bit length.
var longLengthVR = map[string]bool{
	"OB": true, "OD": true, "OF": true, "OL": true, "OV": true, "OW": true,
	"SQ": true, "SV": true, "UC": true, "UN": true, "UR": true, "UT": true, "UV": true,
}

// ParseFile splits a Part 10 file. The meta group is always explicit VR
// little endian.
func ParseFile(data []byte) (*File, error) {
	if len(data) < preambleLength+len(prefix) {
		return nil, errors.Wrapf(dicomerrors.ErrInvalidMessage,
			"data too short to be DICOM Part 10 (need at least %d bytes, got %d)", preambleLength+len(prefix), len(data))
	}
	if string(data[preambleLength:preambleLength+len(prefix)]) != prefix {
		return nil, errors.Wrap(dicomerrors.ErrInvalidMessage, "not a DICOM Part 10 file (missing DICM prefix at offset 128)")
	}

	f := &File{}
	offset := preambleLength + len(prefix)
	for offset+8 <= len(data) {
		group := binary.LittleEndian.Uint16(data[offset:])
		if group != metaGroup {
			break
		}
		element := binary.LittleEndian.Uint16(data[offset+2:])
		vr := string(data[offset+4 : offset+6])

		var length int
		if longLengthVR[vr] {
			if offset+12 > len(data) {
				return nil, errors.Wrapf(dicomerrors.ErrInvalidMessage, "truncated meta element (0002,%04X)", element)
			}
			length = int(binary.LittleEndian.Uint32(data[offset+8:]))
			offset += 12
		} else {
			length = int(binary.LittleEndian.Uint16(data[offset+6:]))
			offset += 8
		}
		if length < 0 || offset+length > len(data) {
			return nil, errors.Wrapf(dicomerrors.ErrInvalidMessage, "meta element (0002,%04X) overruns the file", element)
		}

		value := strings.TrimRight(string(data[offset:offset+length]), "\x00 ")
		switch element {
		case tagMediaStorageSOPClassUID:
			f.MediaStorageSOPClassUID = value
		case tagMediaStorageSOPInstanceUID:
			f.MediaStorageSOPInstanceUID = value
		case tagTransferSyntaxUID:
			f.TransferSyntaxUID = value
		}
		offset += length
	}

	if offset >= len(data) {
		return nil, errors.Wrap(dicomerrors.ErrInvalidMessage, "no data set after File Meta Information")
	}
	f.DataSet = data[offset:]

	dlog.Log.Debugw("Parsed Part 10 header",
		"sop_class", f.MediaStorageSOPClassUID,
		"transfer_syntax", f.TransferSyntaxUID,
		"dataset_offset", offset)
	return f, nil
}

// StripPart10Header returns the data set inside a Part 10 file.
func StripPart10Header(data []byte) ([]byte, error) {
	f, err := ParseFile(data)
	if err != nil {
		return nil, err
	}
	return f.DataSet, nil
}

// HasPart10Header reports whether data starts with the preamble and the
// DICM prefix.
func HasPart10Header(data []byte) bool {
	return len(data) >= preambleLength+len(prefix) &&
		string(data[preambleLength:preambleLength+len(prefix)]) == prefix
}
