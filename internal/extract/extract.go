// Package extract pulls plain text out of uploaded documents so it can be
// sent to the language model. Images are not handled here; they go to the
// model as-is.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"medocs-backend/internal/shared/storage/object"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

	// MaxRunes caps the text handed to the model. Longer documents are cut
	// at a line boundary.
	MaxRunes = 120_000
)

var (
	// ErrUnsupported is returned for content types with no text extractor.
	ErrUnsupported = errors.New("unsupported mime type")
	// ErrNoText is returned when a supported document yields no text, which
	// usually means a scanned PDF without a text layer.
	ErrNoText = errors.New("no text found in document")
	// ErrNoKeySaver is returned when the store cannot write the derived copy.
	ErrNoKeySaver = errors.New("object store does not support SaveWithKey")
)

type extractor func([]byte) (string, error)

var extractors = map[string]extractor{
	mimePDF:  extractPDF,
	mimeDOCX: extractDOCX,
}

// ExtractTextFromBytes returns normalized text for a PDF, DOCX or text/*
// payload.
func ExtractTextFromBytes(ctx context.Context, data []byte, mimeType string, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	kind := detectKind(mimeType, fileName, data)

	fn, ok := extractors[kind]
	if !ok && strings.HasPrefix(kind, "text/") {
		fn, ok = extractPlain, true
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}

	raw, err := fn(data)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", kind, err)
	}
	text := Normalize(raw)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// SaveExtracted writes the derived plain-text copy beside storageKey.
func SaveExtracted(ctx context.Context, store object.ObjectStore, storageKey string, text string) error {
	saver, ok := store.(object.KeySaver)
	if !ok {
		return ErrNoKeySaver
	}
	_, err := saver.SaveWithKey(ctx, storageKey+object.ExtractedSuffix, "text/plain; charset=utf-8", strings.NewReader(text))
	return err
}

var (
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// Normalize strips NULs and carriage returns, trims trailing spaces,
// collapses runs of blank lines and applies MaxRunes.
func Normalize(s string) string {
	s = strings.NewReplacer("\x00", "", "\r\n", "\n", "\r", "\n").Replace(s)
	s = trailingSpace.ReplaceAllString(s, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxRunes {
		return s
	}
	cut := string([]rune(s)[:MaxRunes])
	if i := strings.LastIndexByte(cut, '\n'); i > MaxRunes/2 {
		cut = cut[:i]
	}
	return cut
}

func extractPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("text is not valid utf-8")
	}
	return string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), nil
}

// extractPDF reads page by page so one malformed page does not lose the
// rest of the document.
func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	part := zipPart(zr, "word/document.xml")
	if part == nil {
		return "", errors.New("word/document.xml not found")
	}
	rc, err := part.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return docxText(rc)
}

// docxText walks WordprocessingML: paragraphs and breaks become newlines,
// tabs and table cells become tabs.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			switch t.Name.Local {
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p", "tr":
				b.WriteByte('\n')
			case "tc":
				b.WriteByte('\t')
			}
		}
	}
}

func zipPart(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == name {
			return f
		}
	}
	return nil
}

// detectKind strips parameters from mimeType and resolves generic zip
// uploads to the Office format they contain.
func detectKind(mimeType string, fileName string, data []byte) string {
	kind := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if kind != "application/zip" {
		return kind
	}
	if zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err == nil {
		for part, mapped := range map[string]string{
			"word/document.xml":    mimeDOCX,
			"xl/workbook.xml":      mimeXLSX,
			"ppt/presentation.xml": mimePPTX,
		} {
			if zipPart(zr, part) != nil {
				return mapped
			}
		}
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".docx":
		return mimeDOCX
	case ".xlsx":
		return mimeXLSX
	case ".pptx":
		return mimePPTX
	}
	return kind
}
