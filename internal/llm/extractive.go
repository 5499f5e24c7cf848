package llm

import (
	"context"
	"fmt"
	"strings"

	"studyrag/internal/domain"
	"studyrag/internal/summarizer"
)

// NoMaterial is returned by Extractive when it receives nothing to work with.
const NoMaterial = "The provided material does not cover this question."

// Extractive answers without a language model by quoting the sentences of
// the retrieved chunks that best match the query.
type Extractive struct {
	ranker          *summarizer.Frequency
	answerSentences int
	notesSentences  int
}

func NewExtractive(answerSentences, notesSentences int) *Extractive {
	if answerSentences <= 0 {
		answerSentences = 4
	}
	if notesSentences <= 0 {
		notesSentences = 10
	}
	return &Extractive{ranker: summarizer.NewFrequency(), answerSentences: answerSentences, notesSentences: notesSentences}
}

// Answer ignores history: the selection depends on the query alone.
func (e *Extractive) Answer(ctx context.Context, query string, chunks []domain.Chunk, _ []domain.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	picked := e.ranker.Select(strings.Join(texts, "\n"), query, e.answerSentences)
	if len(picked) == 0 || e.ranker.Overlap(query, strings.Join(picked, " ")) == 0 {
		return NoMaterial, nil
	}
	return strings.Join(picked, " "), nil
}

// Notes lists the most representative sentences as bullets under a heading.
func (e *Extractive) Notes(ctx context.Context, topic string, scored []domain.ScoredChunk) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(scored) == 0 {
		return NoMaterial, nil
	}
	texts := make([]string, len(scored))
	best := 0.0
	for i, s := range scored {
		texts[i] = s.Chunk.Text
		if s.Similarity > best {
			best = s.Similarity
		}
	}
	picked := e.ranker.Select(strings.Join(texts, "\n"), topic, e.notesSentences)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", strings.TrimSpace(topic))
	for _, s := range picked {
		fmt.Fprintf(&b, "- %s\n", strings.TrimLeft(s, "-•* "))
	}
	fmt.Fprintf(&b, "\nBased on %d passages (best match %.2f).", len(scored), best)
	return b.String(), nil
}

// Summarize exposes the underlying ranker for document summaries.
func (e *Extractive) Summarize(text string, maxSentences int) (string, error) {
	return e.ranker.Summarize(text, maxSentences)
}
