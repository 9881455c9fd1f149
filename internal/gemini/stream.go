package gemini

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/genai"
)

// StreamEventType tags a streaming generation event.
type StreamEventType string

const (
	// StreamContent carries an incremental answer fragment.
	StreamContent StreamEventType = "content"

	// StreamSources carries the grounding sources, emitted once after
	// the content fragments.
	StreamSources StreamEventType = "sources"

	// StreamDone terminates a successful stream.
	StreamDone StreamEventType = "done"

	// StreamError terminates a failed stream.
	StreamError StreamEventType = "error"
)

// StreamEvent is one event in a streaming generation. A stream is a
// sequence of content events, at most one sources event, and exactly one
// done or error terminator.
type StreamEvent struct {
	Type    StreamEventType   `json:"type"`
	Content string            `json:"content,omitempty"`
	Sources []GroundingSource `json:"sources,omitempty"`
	Message string            `json:"message,omitempty"`
}

// AskStream is the streaming variant of Ask.
func (c *Client) AskStream(ctx context.Context, storeNames []string, query string, history []Turn) iter.Seq[StreamEvent] {
	if len(storeNames) == 0 {
		return errStream("at least one store is required")
	}
	if query == "" {
		return errStream("query is required")
	}
	return c.stream(ctx, storeNames, buildContents(history, query))
}

// SearchStream is the streaming variant of SearchStores.
func (c *Client) SearchStream(ctx context.Context, storeNames []string, query string) iter.Seq[StreamEvent] {
	if len(storeNames) == 0 {
		return errStream("at least one store is required")
	}
	if len(storeNames) > MaxSearchStores {
		return errStream(fmt.Sprintf("search spans %d stores, maximum is %d",
			len(storeNames), MaxSearchStores))
	}
	if query == "" {
		return errStream("query is required")
	}
	return c.stream(ctx, storeNames, buildContents(nil, query))
}

// stream runs a streaming generation, forwarding content fragments as
// they arrive and closing with sources then the terminator. No retry:
// fragments may already have reached the consumer.
func (c *Client) stream(ctx context.Context, storeNames []string, contents []*genai.Content) iter.Seq[StreamEvent] {
	return func(yield func(StreamEvent) bool) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				yield(StreamEvent{Type: StreamError, Message: fmt.Sprintf("rate limit wait: %v", err)})
				return
			}
		}

		var sources []GroundingSource
		for resp, err := range c.genai.Models.GenerateContentStream(ctx, c.model, contents, c.groundedConfig(storeNames)) {
			if err != nil {
				yield(StreamEvent{Type: StreamError, Message: err.Error()})
				return
			}
			if text := resp.Text(); text != "" {
				if !yield(StreamEvent{Type: StreamContent, Content: text}) {
					return
				}
			}
			// Grounding metadata typically arrives on the final chunk
			if s := extractSources(resp); len(s) > 0 {
				sources = s
			}
		}

		if len(sources) > 0 {
			if !yield(StreamEvent{Type: StreamSources, Sources: sources}) {
				return
			}
		}
		yield(StreamEvent{Type: StreamDone})
	}
}

// errStream yields a single error terminator.
func errStream(msg string) iter.Seq[StreamEvent] {
	return func(yield func(StreamEvent) bool) {
		yield(StreamEvent{Type: StreamError, Message: msg})
	}
}
