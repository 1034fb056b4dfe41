package medications

import "time"

// MedicationResponse is the API shape of a single occurrence.
type MedicationResponse struct {
	ID                               string    `json:"id"`
	DocumentID                       string    `json:"documentId"`
	DocumentName                     string    `json:"documentName"`
	DisplayName                      string    `json:"displayName"`
	GenericName                      *string   `json:"genericName"`
	BrandName                        *string   `json:"brandName"`
	SuggestedName                    *string   `json:"suggestedName"`
	Dosage                           *string   `json:"dosage"`
	Frequency                        *string   `json:"frequency"`
	Purpose                          *string   `json:"purpose"`
	SpecialInstructions              *string   `json:"specialInstructions"`
	InstructionsFromGeneralKnowledge bool      `json:"instructionsFromGeneralKnowledge"`
	SideEffects                      *string   `json:"sideEffects"`
	SideEffectsFromGeneralKnowledge  bool      `json:"sideEffectsFromGeneralKnowledge"`
	CapturedAt                       time.Time `json:"capturedAt"`
}

// AggregatedResponse is the API shape of an aggregated medication.
type AggregatedResponse struct {
	Key                              string   `json:"key"`
	DisplayName                      string   `json:"displayName"`
	GenericName                      *string  `json:"genericName"`
	BrandName                        *string  `json:"brandName"`
	SuggestedName                    *string  `json:"suggestedName"`
	Dosage                           *string  `json:"dosage"`
	Frequency                        *string  `json:"frequency"`
	Purpose                          *string  `json:"purpose"`
	SpecialInstructions              *string  `json:"specialInstructions"`
	InstructionsFromGeneralKnowledge bool     `json:"instructionsFromGeneralKnowledge"`
	SideEffects                      *string  `json:"sideEffects"`
	SideEffectsFromGeneralKnowledge  bool     `json:"sideEffectsFromGeneralKnowledge"`
	Sources                          []Source `json:"sources"`
}

// ToMedicationResponses converts per-occurrence views for output.
func ToMedicationResponses(views []View) []MedicationResponse {
	out := make([]MedicationResponse, 0, len(views))
	for _, v := range views {
		out = append(out, MedicationResponse{
			ID:                               v.ID,
			DocumentID:                       v.DocumentID,
			DocumentName:                     v.DocumentName,
			DisplayName:                      v.DisplayName,
			GenericName:                      v.GenericName,
			BrandName:                        v.BrandName,
			SuggestedName:                    v.SuggestedName,
			Dosage:                           v.Dosage,
			Frequency:                        v.Frequency,
			Purpose:                          v.Purpose,
			SpecialInstructions:              v.SpecialInstructions,
			InstructionsFromGeneralKnowledge: v.InstructionsFromGeneralKnowledge,
			SideEffects:                      v.SideEffects,
			SideEffectsFromGeneralKnowledge:  v.SideEffectsFromGeneralKnowledge,
			CapturedAt:                       v.CapturedAt,
		})
	}
	return out
}

// ToAggregatedResponses converts aggregated medications for output.
func ToAggregatedResponses(aggs []Aggregated) []AggregatedResponse {
	out := make([]AggregatedResponse, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, AggregatedResponse{
			Key:                              a.Key.String(),
			DisplayName:                      a.DisplayName,
			GenericName:                      a.GenericName,
			BrandName:                        a.BrandName,
			SuggestedName:                    a.SuggestedName,
			Dosage:                           a.Dosage,
			Frequency:                        a.Frequency,
			Purpose:                          a.Purpose,
			SpecialInstructions:              a.SpecialInstructions,
			InstructionsFromGeneralKnowledge: a.InstructionsFromGeneralKnowledge,
			SideEffects:                      a.SideEffects,
			SideEffectsFromGeneralKnowledge:  a.SideEffectsFromGeneralKnowledge,
			Sources:                          a.Sources,
		})
	}
	return out
}
