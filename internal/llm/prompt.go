package llm

import (
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"studyrag/internal/domain"
)

const answerSystem = `You are a study assistant. Answer only from the study material provided by the user.
If the material does not contain the answer, say that the material does not cover it.
Answer directly in three to five sentences.`

const notesSystem = `You are an academic note-maker. Turn the provided material into structured study notes:
headings, bullet points and short paragraphs, ordered logically, without repetition.
Finish with a short summary of the key ideas.`

func translateSystem(language string) string {
	return fmt.Sprintf(`Translate the user's English text into %s.
Keep markdown markers, numbers and technical terms intact. Reply with the translation only.`, language)
}

func answerMessages(query string, chunks []domain.Chunk, history []domain.Message, turns int) []goopenai.ChatCompletionMessage {
	msgs := []goopenai.ChatCompletionMessage{{Role: goopenai.ChatMessageRoleSystem, Content: answerSystem}}
	if turns > 0 && len(history) > turns {
		history = history[len(history)-turns:]
	}
	for _, m := range history {
		role := goopenai.ChatMessageRoleUser
		if m.Role == goopenai.ChatMessageRoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	var b strings.Builder
	b.WriteString("Study material:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, strings.TrimSpace(c.Text))
	}
	fmt.Fprintf(&b, "\nQuestion: %s", query)
	return append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: b.String()})
}

func notesMessages(topic string, scored []domain.ScoredChunk) []goopenai.ChatCompletionMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\nMaterial:\n", topic)
	for _, s := range scored {
		fmt.Fprintf(&b, "\n%s\n", strings.TrimSpace(s.Chunk.Text))
	}
	return []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleSystem, Content: notesSystem},
		{Role: goopenai.ChatMessageRoleUser, Content: b.String()},
	}
}
