package types

// Uncompressed transfer syntaxes
const (
	ImplicitVRLittleEndian         = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian         = "1.2.840.10008.1.2.1"
	DeflatedExplicitVRLittleEndian = "1.2.840.10008.1.2.1.99"
	ExplicitVRBigEndian            = "1.2.840.10008.1.2.2"
)

// Encapsulated (compressed) transfer syntaxes
const (
	JPEGBaseline8Bit   = "1.2.840.10008.1.2.4.50"
	JPEGExtended12Bit  = "1.2.840.10008.1.2.4.51"
	JPEGLossless       = "1.2.840.10008.1.2.4.57"
	JPEGLosslessSV1    = "1.2.840.10008.1.2.4.70"
	JPEGLSLossless     = "1.2.840.10008.1.2.4.80"
	JPEGLSNearLossless = "1.2.840.10008.1.2.4.81"
	JPEG2000Lossless   = "1.2.840.10008.1.2.4.90"
	JPEG2000           = "1.2.840.10008.1.2.4.91"
	MPEG2MainProfile   = "1.2.840.10008.1.2.4.100"
	MPEG4AVCH264       = "1.2.840.10008.1.2.4.102"
	HTJ2KLossless      = "1.2.840.10008.1.2.4.201"
	HTJ2K              = "1.2.840.10008.1.2.4.203"
	RLELossless        = "1.2.840.10008.1.2.5"
)

type tsFlag uint8

const (
	tsCompressed tsFlag = 1 << iota
	tsLossy
	tsRetired
	tsBigEndian
	tsImplicitVR
)

// TransferSyntaxInfo describes a registered transfer syntax.
type TransferSyntaxInfo struct {
	UID   string
	Name  string
	flags tsFlag
}

func (i TransferSyntaxInfo) IsCompressed() bool { return i.flags&tsCompressed != 0 }
func (i TransferSyntaxInfo) IsLossless() bool   { return i.flags&tsLossy == 0 }
func (i TransferSyntaxInfo) IsRetired() bool    { return i.flags&tsRetired != 0 }
func (i TransferSyntaxInfo) IsBigEndian() bool  { return i.flags&tsBigEndian != 0 }
func (i TransferSyntaxInfo) IsImplicitVR() bool { return i.flags&tsImplicitVR != 0 }

var transferSyntaxes = []TransferSyntaxInfo{
	{ImplicitVRLittleEndian, "Implicit VR Little Endian", tsImplicitVR},
	{ExplicitVRLittleEndian, "Explicit VR Little Endian", 0},
	{DeflatedExplicitVRLittleEndian, "Deflated Explicit VR Little Endian", tsCompressed},
	{ExplicitVRBigEndian, "Explicit VR Big Endian", tsBigEndian | tsRetired},
	{JPEGBaseline8Bit, "JPEG Baseline (Process 1)", tsCompressed | tsLossy},
	{JPEGExtended12Bit, "JPEG Extended (Process 2 & 4)", tsCompressed | tsLossy},
	{JPEGLossless, "JPEG Lossless, Non-Hierarchical (Process 14)", tsCompressed},
	{JPEGLosslessSV1, "JPEG Lossless, Non-Hierarchical, First-Order Prediction", tsCompressed},
	{JPEGLSLossless, "JPEG-LS Lossless", tsCompressed},
	{JPEGLSNearLossless, "JPEG-LS Near-Lossless", tsCompressed | tsLossy},
	{JPEG2000Lossless, "JPEG 2000 Lossless Only", tsCompressed},
	{JPEG2000, "JPEG 2000", tsCompressed | tsLossy},
	{MPEG2MainProfile, "MPEG2 Main Profile @ Main Level", tsCompressed | tsLossy},
	{MPEG4AVCH264, "MPEG-4 AVC/H.264 High Profile / Level 4.1", tsCompressed | tsLossy},
	{HTJ2KLossless, "High-Throughput JPEG 2000 Lossless Only", tsCompressed},
	{HTJ2K, "High-Throughput JPEG 2000", tsCompressed | tsLossy},
	{RLELossless, "RLE Lossless", tsCompressed},
}

var transferSyntaxRegistry = func() map[string]TransferSyntaxInfo {
	m := make(map[string]TransferSyntaxInfo, len(transferSyntaxes))
	for _, info := range transferSyntaxes {
		m[info.UID] = info
	}
	return m
}()

// GetTransferSyntaxInfo returns registry information for uid, or nil when unknown.
func GetTransferSyntaxInfo(uid string) *TransferSyntaxInfo {
	info, ok := transferSyntaxRegistry[uid]
	if !ok {
		return nil
	}
	return &info
}

func IsCompressed(uid string) bool {
	info, ok := transferSyntaxRegistry[uid]
	return ok && info.IsCompressed()
}

func IsLossless(uid string) bool {
	info, ok := transferSyntaxRegistry[uid]
	return ok && info.IsLossless()
}

func IsRetired(uid string) bool {
	info, ok := transferSyntaxRegistry[uid]
	return ok && info.IsRetired()
}

// UncompressedTransferSyntaxes is the native set every implementation should
// accept, little endian first.
func UncompressedTransferSyntaxes() []string {
	return []string{ExplicitVRLittleEndian, ImplicitVRLittleEndian, ExplicitVRBigEndian}
}

// StorageTransferSyntaxes is the broad set a storage SCP accepts: lossless
// encapsulated syntaxes first, then lossy, then native.
func StorageTransferSyntaxes() []string {
	return []string{
		JPEGLSLossless,
		JPEG2000Lossless,
		JPEGLosslessSV1,
		JPEGLossless,
		RLELossless,
		JPEGLSNearLossless,
		JPEG2000,
		JPEGBaseline8Bit,
		JPEGExtended12Bit,
		ExplicitVRLittleEndian,
		ExplicitVRBigEndian,
		ImplicitVRLittleEndian,
	}
}

// GetCommonTransferSyntaxes returns what an SCU proposes by default, in
// preference order.
func GetCommonTransferSyntaxes() []string {
	return []string{ExplicitVRLittleEndian, ImplicitVRLittleEndian}
}
