package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// EmbedText returns the embedding vector for text, truncated to
// EmbeddingDimension to match the notes table column.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	if c.embedModel == "" {
		return nil, fmt.Errorf("no embedding model configured")
	}

	dim := int32(EmbeddingDimension)
	resp, err := withRetry(ctx, c, "embedding text", func(ctx context.Context) (*genai.EmbedContentResponse, error) {
		return c.genai.Models.EmbedContent(ctx, c.embedModel,
			genai.Text(text),
			&genai.EmbedContentConfig{OutputDimensionality: &dim},
		)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	values := resp.Embeddings[0].Values
	if len(values) > EmbeddingDimension {
		values = values[:EmbeddingDimension]
	}
	return values, nil
}
