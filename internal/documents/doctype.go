package documents

import "strings"

// DocumentType is the closed set of document classifications.
type DocumentType string

const (
	TypeUnclassified  DocumentType = "UNCLASSIFIED"
	TypePrescription  DocumentType = "PRESCRIPTION"
	TypeLabReport     DocumentType = "LAB_REPORT"
	TypeInsurance     DocumentType = "INSURANCE"
	TypeClinicalNotes DocumentType = "CLINICAL_NOTES"
	TypeMiscellaneous DocumentType = "MISCELLANEOUS"
)

// ClassifiableTypes lists the values a classifier may produce.
var ClassifiableTypes = []DocumentType{
	TypePrescription,
	TypeLabReport,
	TypeInsurance,
	TypeClinicalNotes,
	TypeMiscellaneous,
}

// ParseDocumentType maps a classifier label onto the enumeration. Only an
// exact match (surrounding whitespace ignored) is accepted; anything else is
// MISCELLANEOUS.
func ParseDocumentType(raw string) DocumentType {
	label := DocumentType(strings.TrimSpace(raw))
	for _, t := range ClassifiableTypes {
		if label == t {
			return t
		}
	}
	return TypeMiscellaneous
}

// Known reports whether t is a member of the enumeration, including
// UNCLASSIFIED.
func (t DocumentType) Known() bool {
	if t == TypeUnclassified {
		return true
	}
	for _, c := range ClassifiableTypes {
		if t == c {
			return true
		}
	}
	return false
}
