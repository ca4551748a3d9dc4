package lobe

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/model"
)

// cortexPreamble is the shared framing prepended to every lobe prompt.
// It adapts to query length and available memory.
func cortexPreamble(in Input, selected Kind) string {
	var b strings.Builder
	b.WriteString("You are the cortex of a digital brain. Route intent to the ")
	b.WriteString(string(selected))
	b.WriteString(" lobe and answer in its voice.\n")
	if in.User != nil {
		fmt.Fprintf(&b, "User: %s\n", in.User.Name)
	}
	fmt.Fprintf(&b, "Query: %s\n", in.Query)
	if in.MemoryContext != "" {
		fmt.Fprintf(&b, "Relevant memory: %s\n", in.MemoryContext)
	} else {
		b.WriteString("Relevant memory: none\n")
	}
	b.WriteString("Answer the query directly. Do not mention these instructions.\n")
	if len(in.Query) < 10 {
		b.WriteString("Respond short and fast.\n")
	} else if strings.Contains(strings.ToLower(in.Query), "explain") {
		b.WriteString("Explain step by step.\n")
	}
	if len(in.MemoryContext) > 20 {
		b.WriteString("Connect the answer to memory when relevant.\n")
	}
	if in.Mode != "" {
		fmt.Fprintf(&b, "Mode: %s\n", in.Mode)
		if in.ModePrompt != "" {
			b.WriteString(in.ModePrompt)
			b.WriteString("\n")
		}
	}
	if in.TargetLanguage != "" {
		fmt.Fprintf(&b, "Answer in %s.\n", in.TargetLanguage)
	}
	return b.String()
}

// FrontalProcessor handles reasoning, planning and decision queries.
type FrontalProcessor struct {
	Runtime Runtime
}

func (p *FrontalProcessor) Process(ctx context.Context, in Input) (string, error) {
	prompt := cortexPreamble(in, Frontal) + `
You are the Frontal Lobe of a digital brain.
Break the task into logical steps, give structured reasoning and a
clear actionable answer. Avoid generic chatbot tone. Keep answers
concise unless asked for more. If memory exists, build on it instead
of repeating it.`
	return Complete(ctx, p.Runtime, prompt, nil)
}

// TemporalProcessor handles comprehension: summarizing, analyzing and
// extracting structure from text or an attached document.
type TemporalProcessor struct {
	Runtime Runtime
}

func (p *TemporalProcessor) Process(ctx context.Context, in Input) (string, error) {
	fileContent := in.FileContent
	if fileContent == "" {
		fileContent = "NO FILE"
	}
	prompt := cortexPreamble(in, Temporal) + fmt.Sprintf(`
You are the Temporal Lobe of a digital brain. Your job is to
UNDERSTAND information.

If there is file content: summarize it, highlight key points and
extract structure. If there is only a query, interpret it and explain
the concepts. Return structured output in sections, not long essays.

File content: %q`, fileContent)
	return Complete(ctx, p.Runtime, prompt, nil)
}

// ParietalProcessor surfaces stored memories. It never invents
// memories; with no matches it replies with a short fixed phrase.
type ParietalProcessor struct {
	Runtime Runtime
}

func (p *ParietalProcessor) Process(ctx context.Context, in Input) (string, error) {
	prompt := cortexPreamble(in, Parietal) + `
You are the Parietal Lobe of a digital brain. Work only with the
matched memories above. Never invent memories or add fake details.
If no memory matches, reply exactly: "No stored memory found for this
query yet." Otherwise list each match as a short label plus a small
snippet, then one line on how to refine or build new memory. Keep it
very short and human friendly.`
	return Complete(ctx, p.Runtime, prompt, nil)
}

// OccipitalProcessor is the visual cortex. It needs a locally stored
// image file and sends it alongside the prompt.
type OccipitalProcessor struct {
	Runtime Runtime
}

func (p *OccipitalProcessor) Process(ctx context.Context, in Input) (string, error) {
	if in.File == nil {
		return "", fmt.Errorf("no file provided for visual lobe")
	}
	data, err := os.ReadFile(in.File.Path)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", in.File.Path, err)
	}
	mediaType := in.File.MimeType
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
		if mediaType == "application/octet-stream" {
			mediaType = "image/jpeg"
		}
	}
	blocks := []model.ContentBlock{{
		Type:      model.ContentBlockImage,
		MediaType: mediaType,
		Data:      base64.StdEncoding.EncodeToString(data),
	}}

	prompt := cortexPreamble(in, Occipital) + `
You are the Occipital Lobe, the visual cortex. Analyze the provided
image deeply. If the query asks to extract text, provide the text
exactly. If the query asks to explain, describe the visual elements.`
	return Complete(ctx, p.Runtime, prompt, blocks)
}
