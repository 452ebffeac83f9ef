package types

import "strings"

// ApplicationContextUID is the only application context DICOM defines.
const ApplicationContextUID = "1.2.840.10008.3.1.1.1"

// Category groups abstract syntaxes for negotiation policy.
type Category string

const (
	CategoryVerification  Category = "Verification"
	CategoryStorage       Category = "Storage"
	CategoryQueryRetrieve Category = "Query/Retrieve"
	CategoryWorklist      Category = "Worklist"
	CategoryOther         Category = "Other"
	CategoryUnknown       Category = ""
)

const VerificationSOPClass = "1.2.840.10008.1.1"

// Storage SOP classes
const (
	ComputedRadiographyImageStorage        = "1.2.840.10008.5.1.4.1.1.1"
	DigitalXRayImageStorageForPresentation = "1.2.840.10008.5.1.4.1.1.1.1"
	DigitalMammographyXRayImageStorage     = "1.2.840.10008.5.1.4.1.1.1.2"
	CTImageStorage                         = "1.2.840.10008.5.1.4.1.1.2"
	EnhancedCTImageStorage                 = "1.2.840.10008.5.1.4.1.1.2.1"
	UltrasoundMultiFrameImageStorage       = "1.2.840.10008.5.1.4.1.1.3.1"
	MRImageStorage                         = "1.2.840.10008.5.1.4.1.1.4"
	EnhancedMRImageStorage                 = "1.2.840.10008.5.1.4.1.1.4.1"
	UltrasoundImageStorage                 = "1.2.840.10008.5.1.4.1.1.6.1"
	SecondaryCaptureImageStorage           = "1.2.840.10008.5.1.4.1.1.7"
	XRayAngiographicImageStorage           = "1.2.840.10008.5.1.4.1.1.12.1"
	NuclearMedicineImageStorage            = "1.2.840.10008.5.1.4.1.1.20"
	BasicTextSRStorage                     = "1.2.840.10008.5.1.4.1.1.88.11"
	EnhancedSRStorage                      = "1.2.840.10008.5.1.4.1.1.88.22"
	EncapsulatedPDFStorage                 = "1.2.840.10008.5.1.4.1.1.104.1"
	PETImageStorage                        = "1.2.840.10008.5.1.4.1.1.128"
	RTImageStorage                         = "1.2.840.10008.5.1.4.1.1.481.1"
	RTDoseStorage                          = "1.2.840.10008.5.1.4.1.1.481.2"
	RTStructureSetStorage                  = "1.2.840.10008.5.1.4.1.1.481.3"
	RTPlanStorage                          = "1.2.840.10008.5.1.4.1.1.481.5"
)

// Query/Retrieve information models
const (
	PatientRootQueryRetrieveInformationModelFind = "1.2.840.10008.5.1.4.1.2.1.1"
	PatientRootQueryRetrieveInformationModelMove = "1.2.840.10008.5.1.4.1.2.1.2"
	PatientRootQueryRetrieveInformationModelGet  = "1.2.840.10008.5.1.4.1.2.1.3"
	StudyRootQueryRetrieveInformationModelFind   = "1.2.840.10008.5.1.4.1.2.2.1"
	StudyRootQueryRetrieveInformationModelMove   = "1.2.840.10008.5.1.4.1.2.2.2"
	StudyRootQueryRetrieveInformationModelGet    = "1.2.840.10008.5.1.4.1.2.2.3"
	CompositeInstanceRootRetrieveMove            = "1.2.840.10008.5.1.4.1.2.4.2"
	CompositeInstanceRootRetrieveGet             = "1.2.840.10008.5.1.4.1.2.4.3"
)

const (
	ModalityWorklistInformationModelFind   = "1.2.840.10008.5.1.4.31"
	ModalityPerformedProcedureStepSOPClass = "1.2.840.10008.3.1.2.3.3"
	StorageCommitmentPushModelSOPClass     = "1.2.840.10008.1.20.1"
)

// storageArc prefixes every standard composite storage SOP class.
const storageArc = "1.2.840.10008.5.1.4.1.1."

// SOPClassInfo describes a registered abstract syntax.
type SOPClassInfo struct {
	UID      string
	Name     string
	Category Category
}

var sopClasses = []SOPClassInfo{
	{VerificationSOPClass, "Verification SOP Class", CategoryVerification},

	{ComputedRadiographyImageStorage, "Computed Radiography Image Storage", CategoryStorage},
	{DigitalXRayImageStorageForPresentation, "Digital X-Ray Image Storage - For Presentation", CategoryStorage},
	{DigitalMammographyXRayImageStorage, "Digital Mammography X-Ray Image Storage - For Presentation", CategoryStorage},
	{CTImageStorage, "CT Image Storage", CategoryStorage},
	{EnhancedCTImageStorage, "Enhanced CT Image Storage", CategoryStorage},
	{UltrasoundMultiFrameImageStorage, "Ultrasound Multi-frame Image Storage", CategoryStorage},
	{MRImageStorage, "MR Image Storage", CategoryStorage},
	{EnhancedMRImageStorage, "Enhanced MR Image Storage", CategoryStorage},
	{UltrasoundImageStorage, "Ultrasound Image Storage", CategoryStorage},
	{SecondaryCaptureImageStorage, "Secondary Capture Image Storage", CategoryStorage},
	{XRayAngiographicImageStorage, "X-Ray Angiographic Image Storage", CategoryStorage},
	{NuclearMedicineImageStorage, "Nuclear Medicine Image Storage", CategoryStorage},
	{BasicTextSRStorage, "Basic Text SR Storage", CategoryStorage},
	{EnhancedSRStorage, "Enhanced SR Storage", CategoryStorage},
	{EncapsulatedPDFStorage, "Encapsulated PDF Storage", CategoryStorage},
	{PETImageStorage, "PET Image Storage", CategoryStorage},
	{RTImageStorage, "RT Image Storage", CategoryStorage},
	{RTDoseStorage, "RT Dose Storage", CategoryStorage},
	{RTStructureSetStorage, "RT Structure Set Storage", CategoryStorage},
	{RTPlanStorage, "RT Plan Storage", CategoryStorage},

	{PatientRootQueryRetrieveInformationModelFind, "Patient Root Query/Retrieve - FIND", CategoryQueryRetrieve},
	{PatientRootQueryRetrieveInformationModelMove, "Patient Root Query/Retrieve - MOVE", CategoryQueryRetrieve},
	{PatientRootQueryRetrieveInformationModelGet, "Patient Root Query/Retrieve - GET", CategoryQueryRetrieve},
	{StudyRootQueryRetrieveInformationModelFind, "Study Root Query/Retrieve - FIND", CategoryQueryRetrieve},
	{StudyRootQueryRetrieveInformationModelMove, "Study Root Query/Retrieve - MOVE", CategoryQueryRetrieve},
	{StudyRootQueryRetrieveInformationModelGet, "Study Root Query/Retrieve - GET", CategoryQueryRetrieve},
	{CompositeInstanceRootRetrieveMove, "Composite Instance Root Retrieve - MOVE", CategoryQueryRetrieve},
	{CompositeInstanceRootRetrieveGet, "Composite Instance Root Retrieve - GET", CategoryQueryRetrieve},

	{ModalityWorklistInformationModelFind, "Modality Worklist - FIND", CategoryWorklist},
	{ModalityPerformedProcedureStepSOPClass, "Modality Performed Procedure Step", CategoryOther},
	{StorageCommitmentPushModelSOPClass, "Storage Commitment Push Model", CategoryOther},
}

// sopClassRegistry is built once at init and only read afterwards.
var sopClassRegistry = indexSOPClasses(sopClasses)

func indexSOPClasses(list []SOPClassInfo) map[string]SOPClassInfo {
	m := make(map[string]SOPClassInfo, len(list))
	for _, info := range list {
		m[info.UID] = info
	}
	return m
}

// GetSOPClassInfo returns registry information for uid, or nil when unknown.
func GetSOPClassInfo(uid string) *SOPClassInfo {
	info, ok := sopClassRegistry[uid]
	if !ok {
		return nil
	}
	return &info
}

// CategoryOf classifies an abstract syntax. Unregistered UIDs under the
// composite storage arc are still reported as storage.
func CategoryOf(uid string) Category {
	if info, ok := sopClassRegistry[uid]; ok {
		return info.Category
	}
	if strings.HasPrefix(uid, storageArc) && IsValidUID(uid) {
		return CategoryStorage
	}
	return CategoryUnknown
}

func IsStorageSOPClass(uid string) bool {
	return CategoryOf(uid) == CategoryStorage
}

func IsQueryRetrieveSOPClass(uid string) bool {
	return CategoryOf(uid) == CategoryQueryRetrieve
}

// StorageSOPClasses returns the registered storage classes in registry order.
func StorageSOPClasses() []string {
	var out []string
	for _, info := range sopClasses {
		if info.Category == CategoryStorage {
			out = append(out, info.UID)
		}
	}
	return out
}
