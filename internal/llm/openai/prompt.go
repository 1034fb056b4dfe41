package openai

import (
	"encoding/base64"
	"fmt"
	"strings"

	"medocs-backend/internal/llm"
)

const systemPrompt = "You are a careful medical document assistant. Respond with JSON only. No markdown. Output must match the requested shape exactly."

// buildMessages assembles the system, developer, and user turns for one
// request. Images travel as a data URL next to a short text part.
func buildMessages(instructions string, content llm.Content) []chatMessage {
	return []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "developer", Content: instructions},
		{Role: "user", Content: userContent(content)},
	}
}

func userContent(content llm.Content) any {
	if !content.IsImage() {
		return fmt.Sprintf("Document text:\n%s", content.Text)
	}
	parts := []contentPart{
		{Type: "text", Text: "The document is attached as an image."},
		{Type: "image_url", ImageURL: &imageURL{URL: dataURL(content)}},
	}
	if strings.TrimSpace(content.Text) != "" {
		parts = append(parts, contentPart{Type: "text", Text: "Text recognized so far:\n" + content.Text})
	}
	return parts
}

func dataURL(content llm.Content) string {
	mimeType := strings.TrimSpace(strings.Split(content.MimeType, ";")[0])
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(content.Data)
}
