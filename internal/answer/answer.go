// Package answer composes retrieved chunks into numbered context blocks,
// calls the LLM, and builds deduplicated, deep-linked citations.
package answer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/codeforge-rag/service/internal/llmclient"
	"github.com/codeforge-rag/service/internal/retriever"
)

const systemDirective = "Answer only from the given context. Cite sources inline using their bracketed number, e.g. [1]. If the context does not contain the answer, say so."

const noRelevantCodeAnswer = "No relevant code found for your question."

const degradedPreamble = "LLM unavailable; returning retrieved context without synthesis.\n\n"

const summarySystemDirective = "You write concise, accurate project summaries from a repository's indexed " +
	"file paths. Respond with a short 2-3 paragraph summary only, based solely on the files listed."

const paperSystemDirective = "You write comprehensive one-page project overviews from a repository's " +
	"indexed file paths. Respond with a structured write-up covering purpose, architecture, key " +
	"technologies, main features, and file/folder structure, based solely on the files listed."

const degradedSummary = "LLM unavailable; summary could not be generated."

// Reference is one deduplicated citation.
type Reference struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	URL       string `json:"url"`
}

// Answer is the composed response to a query.
type Answer struct {
	Text       string
	References []Reference
}

// Composer formats context, calls the LLM, and builds citations. A nil LLM
// falls back to the degraded-success path (spec §7.5): it never fails a
// request for want of a credential.
type Composer struct {
	LLM llmclient.Client
}

// New builds a Composer. llm may be nil.
func New(llm llmclient.Client) *Composer {
	return &Composer{LLM: llm}
}

// Compose formats hits as numbered context blocks, asks the LLM to answer
// question from them, and returns deduplicated citations with deep-link
// URLs built from forge/owner/repo/branch.
func (c *Composer) Compose(ctx context.Context, forgeHost, owner, repo, branch, question string, hits []retriever.Hit) (Answer, error) {
	if len(hits) == 0 {
		return Answer{Text: noRelevantCodeAnswer, References: []Reference{}}, nil
	}

	blocks, references := formatContext(hits)
	contextText := strings.Join(blocks, "\n\n")

	refs := make([]Reference, len(references))
	for i, r := range references {
		refs[i] = Reference{
			FilePath:  r.FilePath,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			URL:       citationURL(forgeHost, owner, repo, branch, r.FilePath, r.StartLine, r.EndLine),
		}
	}

	if c.LLM == nil {
		return Answer{Text: degradedPreamble + contextText, References: refs}, nil
	}

	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)
	text, err := c.LLM.Chat(ctx, []llmclient.Message{
		{Role: "system", Content: systemDirective},
		{Role: "user", Content: userPrompt},
	})
	if err != nil {
		return Answer{Text: degradedPreamble + contextText, References: refs}, nil
	}

	return Answer{Text: text, References: refs}, nil
}

// Summary is the two-artifact result of Summarize.
type Summary struct {
	Summary      string
	ProjectPaper string
}

// Summarize asks the LLM to describe a repo from its indexed file paths and
// a caller-supplied description. The summary and project_paper are two
// separate completions with distinct prompts, not one completion split on a
// delimiter: they ask for different depth and shape of write-up, and a
// failure of one shouldn't have to spoil the other. If no LLM is configured,
// or a call fails, the affected artifact degrades rather than failing the
// request (spec §7.5).
func (c *Composer) Summarize(ctx context.Context, owner, repo, description string, files []retriever.FileHit) (Summary, error) {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.FilePath
	}

	if c.LLM == nil {
		return Summary{Summary: degradedSummary, ProjectPaper: degradedSummary}, nil
	}

	fileList := strings.Join(paths, "\n")

	summaryPrompt := fmt.Sprintf(
		"Repository: %s/%s\nDescription: %s\nIndexed files:\n%s\n\n"+
			"Write a concise 2-3 paragraph summary of what this project does and how it is organized.",
		owner, repo, description, fileList,
	)
	summaryText, err := c.LLM.Chat(ctx, []llmclient.Message{
		{Role: "system", Content: summarySystemDirective},
		{Role: "user", Content: summaryPrompt},
	})
	if err != nil {
		summaryText = degradedSummary
	} else {
		summaryText = strings.TrimSpace(summaryText)
	}

	paperPrompt := fmt.Sprintf(
		"Repository: %s/%s\nDescription: %s\nIndexed files:\n%s\n\n"+
			"Write a comprehensive one-page project overview covering purpose, architecture, key "+
			"technologies, main features, and file/folder structure.",
		owner, repo, description, fileList,
	)
	paperText, err := c.LLM.Chat(ctx, []llmclient.Message{
		{Role: "system", Content: paperSystemDirective},
		{Role: "user", Content: paperPrompt},
	})
	if err != nil {
		return Summary{Summary: summaryText, ProjectPaper: degradedSummary}, nil
	}

	return Summary{Summary: summaryText, ProjectPaper: strings.TrimSpace(paperText)}, nil
}

type dedupKey struct {
	path       string
	start, end int
}

// formatContext numbers hits in retrieval order and deduplicates references
// by (file_path, start_line, end_line), preserving first-seen order.
func formatContext(hits []retriever.Hit) (blocks []string, references []retriever.Hit) {
	seen := map[dedupKey]bool{}
	n := 0

	for _, h := range hits {
		key := dedupKey{h.FilePath, h.StartLine, h.EndLine}
		if seen[key] {
			continue
		}
		seen[key] = true
		n++
		references = append(references, h)
		blocks = append(blocks, fmt.Sprintf("[%d] %s:%d-%d\n%s", n, h.FilePath, h.StartLine, h.EndLine, h.Text))
	}
	return blocks, references
}

func citationURL(forgeHost, owner, repo, branch, path string, start, end int) string {
	return fmt.Sprintf("https://%s/%s/%s/blob/%s/%s#L%s-L%s",
		forgeHost, owner, repo, branch, path, strconv.Itoa(start), strconv.Itoa(end))
}
