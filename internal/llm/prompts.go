package llm

import (
	_ "embed"
	"strings"

	"medocs-backend/internal/documents"
)

var (
	//go:embed prompts/classify.txt
	promptClassify string
	//go:embed prompts/simplify.txt
	promptSimplify string
	//go:embed prompts/extract_medications.txt
	promptExtractMedications string
)

var simplifyGuidance = map[documents.DocumentType]string{
	documents.TypePrescription:  "Explain each medication, how much to take, how often, and for how long.",
	documents.TypeLabReport:     "Explain what each test measures and whether each result is inside or outside the listed reference range.",
	documents.TypeInsurance:     "Explain what is covered, what the patient may owe, and any deadlines or reference numbers.",
	documents.TypeClinicalNotes: "Summarize why the patient was seen, what was found, and the agreed next steps.",
	documents.TypeMiscellaneous: "Summarize the main points the patient needs to know.",
}

// ClassifyPrompt returns the classification instructions.
func ClassifyPrompt() string {
	return promptClassify
}

// SimplifyPrompt returns the simplification instructions for the document type.
func SimplifyPrompt(docType documents.DocumentType) string {
	guidance, ok := simplifyGuidance[docType]
	if !ok {
		docType = documents.TypeMiscellaneous
		guidance = simplifyGuidance[documents.TypeMiscellaneous]
	}
	return strings.NewReplacer(
		"{{DOCUMENT_TYPE}}", string(docType),
		"{{TYPE_GUIDANCE}}", guidance,
	).Replace(promptSimplify)
}

// ExtractMedicationsPrompt returns the medication extraction instructions.
func ExtractMedicationsPrompt() string {
	return promptExtractMedications
}
