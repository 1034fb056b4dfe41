package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"medocs-backend/internal/extract"
	"medocs-backend/internal/llm"
	"medocs-backend/internal/shared/storage/object"
)

type analyzeOutput struct {
	File           string           `json:"file"`
	MimeType       string           `json:"mimeType"`
	DocumentType   string           `json:"documentType"`
	SimplifiedText string           `json:"simplifiedText"`
	Medications    []llm.Medication `json:"medications"`
}

// analyzeCmd runs the understanding calls against a local file without
// touching storage, for prompt iteration.
func analyzeCmd(d deps) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Classify, simplify and extract medications from a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := d.loadConfig()
			if err != nil {
				return err
			}
			client, err := d.newLLM(cfg)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			fileName := filepath.Base(args[0])
			mimeType, _, err := object.Sniff(bytes.NewReader(data), fileName)
			if err != nil {
				return fmt.Errorf("detect type: %w", err)
			}

			content := llm.Content{MimeType: mimeType}
			content.Data = data
			if !content.IsImage() {
				content.Data = nil
				text, err := extract.ExtractTextFromBytes(cmd.Context(), data, mimeType, fileName)
				if err != nil {
					return fmt.Errorf("extract text: %w", err)
				}
				content.Text = text
			}

			docType, err := client.Classify(cmd.Context(), content)
			if err != nil {
				return fmt.Errorf("classify: %w", err)
			}
			simplified, err := client.Simplify(cmd.Context(), content, docType)
			if err != nil {
				return fmt.Errorf("simplify: %w", err)
			}
			meds, err := client.ExtractMedications(cmd.Context(), content)
			if err != nil {
				return fmt.Errorf("extract medications: %w", err)
			}
			if meds == nil {
				meds = []llm.Medication{}
			}

			out := analyzeOutput{
				File:           fileName,
				MimeType:       mimeType,
				DocumentType:   string(docType),
				SimplifiedText: simplified,
				Medications:    meds,
			}

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = io.MultiWriter(cmd.OutOrStdout(), f)
			}
			return writeJSON(w, out)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "Also write the JSON result to this path")
	return cmd
}
