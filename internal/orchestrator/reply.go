package orchestrator

import (
	"context"
	"strings"
)

const (
	// maxMessageLen is the platform's message size limit.
	maxMessageLen = 2000

	// continuationMarker prefixes every chunk after the first.
	continuationMarker = "(cont.) "

	// emptyReplyFallback is sent when the model returns no text at all.
	emptyReplyFallback = "..."
)

// splitChunks splits text into platform-sized chunks. Every chunk after the
// first carries the continuation marker; breaks prefer a newline in the
// second half of the window over a hard cut.
func splitChunks(text string, max int) []string {
	if strings.TrimSpace(text) == "" {
		return []string{emptyReplyFallback}
	}

	var chunks []string
	for len(text) > 0 {
		limit := max
		if len(chunks) > 0 {
			limit = max - len(continuationMarker)
		}

		chunk := text
		if len(chunk) > limit {
			cutAt := limit
			if idx := strings.LastIndexByte(text[:limit], '\n'); idx > limit/2 {
				cutAt = idx + 1
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}

		if len(chunks) > 0 {
			chunk = continuationMarker + chunk
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// deliverText sends a reply as a chain of chunks, each replying to the
// previous one so the platform threads them coherently.
func (o *Orchestrator) deliverText(ctx context.Context, rep Replier, replyToID, text string) error {
	prev := replyToID
	for _, chunk := range splitChunks(text, maxMessageLen) {
		id, err := rep.Reply(ctx, prev, chunk)
		if err != nil {
			return err
		}
		prev = id
	}
	return nil
}

// deliverWithImage sends a chunk chain with the artifact attached to the
// final text chunk; the image itself is never split.
func (o *Orchestrator) deliverWithImage(ctx context.Context, rep Replier, replyToID, text, filename string, image []byte) error {
	chunks := splitChunks(text, maxMessageLen)
	prev := replyToID
	for i, chunk := range chunks {
		var (
			id  string
			err error
		)
		if i == len(chunks)-1 {
			id, err = rep.ReplyWithImage(ctx, prev, chunk, filename, image)
		} else {
			id, err = rep.Reply(ctx, prev, chunk)
		}
		if err != nil {
			return err
		}
		prev = id
	}
	return nil
}
