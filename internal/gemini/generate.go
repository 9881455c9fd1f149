package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// MaxSearchStores caps how many stores one search query may span.
const MaxSearchStores = 5

// Turn is one prior exchange in a chat history.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// GroundingSource references a document passage the model grounded its
// answer on.
type GroundingSource struct {
	Source  string `json:"source"`
	Content string `json:"content,omitempty"`
	StoreID string `json:"store_id,omitempty"`
}

// GenerateResult is a grounded generation answer.
type GenerateResult struct {
	Text    string            `json:"text"`
	Sources []GroundingSource `json:"sources"`
}

// SummaryStyle selects the length of a summary.
type SummaryStyle string

const (
	SummaryShort    SummaryStyle = "short"
	SummaryDetailed SummaryStyle = "detailed"
)

// CitationLocation pinpoints where in the answer a citation applies.
type CitationLocation struct {
	Page       *int  `json:"page,omitempty"`
	StartIndex int32 `json:"start_index"`
	EndIndex   int32 `json:"end_index"`
}

// Citation ties an answer segment to its grounding document.
type Citation struct {
	Source   string           `json:"source"`
	Snippet  string           `json:"snippet,omitempty"`
	Location CitationLocation `json:"location"`
}

// Ask answers a question grounded in the given stores, optionally
// continuing a prior history.
func (c *Client) Ask(ctx context.Context, storeNames []string, query string, history []Turn) (*GenerateResult, error) {
	if len(storeNames) == 0 {
		return nil, fmt.Errorf("at least one store is required")
	}
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	return c.generate(ctx, "ask", storeNames, buildContents(history, query))
}

// SearchStores answers a question across multiple stores. Capped at
// MaxSearchStores to keep grounding quality and latency sane.
func (c *Client) SearchStores(ctx context.Context, storeNames []string, query string) (*GenerateResult, error) {
	if len(storeNames) == 0 {
		return nil, fmt.Errorf("at least one store is required")
	}
	if len(storeNames) > MaxSearchStores {
		return nil, fmt.Errorf("search spans %d stores, maximum is %d", len(storeNames), MaxSearchStores)
	}
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	return c.generate(ctx, "search", storeNames, buildContents(nil, query))
}

// Summarize produces a summary of a whole channel, or a single document
// when documentName is non-empty.
func (c *Client) Summarize(ctx context.Context, storeName string, style SummaryStyle, documentName string) (*GenerateResult, error) {
	var b strings.Builder
	switch style {
	case SummaryDetailed:
		b.WriteString("Write a detailed summary")
	case SummaryShort, "":
		b.WriteString("Write a concise summary (3-5 sentences)")
	default:
		return nil, fmt.Errorf("unknown summary style %q", style)
	}
	if documentName != "" {
		fmt.Fprintf(&b, " of the document %q.", documentName)
	} else {
		b.WriteString(" of all the documents available.")
	}
	b.WriteString(" Cover the main topics and key conclusions.")

	return c.generate(ctx, "summarize", []string{storeName}, buildContents(nil, b.String()))
}

// FAQ generates count frequently-asked questions with answers drawn from
// the store's documents.
func (c *Client) FAQ(ctx context.Context, storeName string, count int) (*GenerateResult, error) {
	if count <= 0 {
		count = 5
	}
	prompt := fmt.Sprintf(
		"Generate %d frequently asked questions about the documents, each with "+
			"a clear, factual answer grounded in the material. Format as a "+
			"numbered list of Q/A pairs.", count)
	return c.generate(ctx, "faq", []string{storeName}, buildContents(nil, prompt))
}

// StudyGuide generates a structured study guide from the store's
// documents.
func (c *Client) StudyGuide(ctx context.Context, storeName, difficulty string, maxSections int, includeConcepts bool) (*GenerateResult, error) {
	if maxSections <= 0 {
		maxSections = 5
	}
	if difficulty == "" {
		difficulty = "medium"
	}

	var b strings.Builder
	fmt.Fprintf(&b,
		"Create a study guide at %s difficulty from the documents, with at "+
			"most %d sections. Each section needs a title and 3-5 key points.",
		difficulty, maxSections)
	if includeConcepts {
		b.WriteString(" Finish with a glossary of the key concepts and their definitions.")
	}
	return c.generate(ctx, "study guide", []string{storeName}, buildContents(nil, b.String()))
}

// Quiz generates count quiz questions with answers and difficulty labels.
func (c *Client) Quiz(ctx context.Context, storeName string, count int) (*GenerateResult, error) {
	if count <= 0 {
		count = 5
	}
	prompt := fmt.Sprintf(
		"Create a quiz of %d multiple-choice questions from the documents. "+
			"For each question give four options, mark the correct answer, add a "+
			"one-sentence explanation, and label the difficulty as easy, medium "+
			"or hard.", count)
	return c.generate(ctx, "quiz", []string{storeName}, buildContents(nil, prompt))
}

// PodcastScript generates a two-host conversational script walking
// through the store's documents.
func (c *Client) PodcastScript(ctx context.Context, storeName string) (*GenerateResult, error) {
	prompt := "Write a podcast script where two hosts discuss the documents in a " +
		"natural, engaging conversation. Introduce the material, walk through " +
		"the main ideas with concrete examples, and close with the key takeaways."
	return c.generate(ctx, "podcast script", []string{storeName}, buildContents(nil, prompt))
}

// Citations answers a question and returns the structured citation list
// tying answer segments to source documents.
func (c *Client) Citations(ctx context.Context, storeName, query string) (string, []Citation, error) {
	if query == "" {
		return "", nil, fmt.Errorf("query is required")
	}

	resp, err := withRetry(ctx, c, "citations", func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return c.genai.Models.GenerateContent(ctx, c.model,
			buildContents(nil, query), c.groundedConfig([]string{storeName}))
	})
	if err != nil {
		return "", nil, err
	}
	return resp.Text(), extractCitations(resp), nil
}

// generate runs one grounded generation call and extracts the answer and
// its grounding sources.
func (c *Client) generate(ctx context.Context, op string, storeNames []string, contents []*genai.Content) (*GenerateResult, error) {
	resp, err := withRetry(ctx, c, op, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return c.genai.Models.GenerateContent(ctx, c.model, contents, c.groundedConfig(storeNames))
	})
	if err != nil {
		return nil, err
	}
	return &GenerateResult{Text: resp.Text(), Sources: extractSources(resp)}, nil
}

// groundedConfig builds a generation config with the FileSearch tool
// bound to the given stores.
func (c *Client) groundedConfig(storeNames []string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Tools: []*genai.Tool{
			{FileSearch: &genai.FileSearch{FileSearchStoreNames: storeNames}},
		},
	}
}

// buildContents converts a history plus the current query into genai
// contents. Assistant turns map to the model role.
func buildContents(history []Turn, query string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		var role genai.Role = genai.RoleUser
		if turn.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	return append(contents, genai.NewContentFromText(query, genai.RoleUser))
}

// extractSources pulls the grounding chunks out of a generation response.
func extractSources(resp *genai.GenerateContentResponse) []GroundingSource {
	sources := []GroundingSource{}
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return sources
	}
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		rc := chunk.RetrievedContext
		if rc == nil {
			continue
		}
		sources = append(sources, GroundingSource{
			Source:  rc.Title,
			Content: rc.Text,
			StoreID: rc.URI,
		})
	}
	return sources
}

// extractCitations maps grounding supports to answer segments.
func extractCitations(resp *genai.GenerateContentResponse) []Citation {
	citations := []Citation{}
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return citations
	}
	md := resp.Candidates[0].GroundingMetadata

	for _, support := range md.GroundingSupports {
		if support.Segment == nil {
			continue
		}
		for _, idx := range support.GroundingChunkIndices {
			if int(idx) >= len(md.GroundingChunks) {
				continue
			}
			rc := md.GroundingChunks[idx].RetrievedContext
			if rc == nil {
				continue
			}
			citations = append(citations, Citation{
				Source:  rc.Title,
				Snippet: support.Segment.Text,
				Location: CitationLocation{
					StartIndex: support.Segment.StartIndex,
					EndIndex:   support.Segment.EndIndex,
				},
			})
		}
	}
	return citations
}
