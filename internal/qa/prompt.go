package qa

import (
	"encoding/json"
	"strings"
)

// Turn is one earlier question/answer exchange.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// UnmarshalJSON accepts the chat-style aliases content/user and
// response/assistant alongside question and answer.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Question = firstString(raw, "question", "content", "user")
	t.Answer = firstString(raw, "answer", "response", "assistant")
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

const instructions = `Answer the question conversationally using the reference material below.
Style guide:
- Explain the answer the way a helpful colleague would; do not dump the raw data back.
- Add a short example or extra explanation where it helps.
- Keep tables as markdown tables and lists as numbered or bulleted lists.
- Cite the source (document, sheet, row or page) for every claim.
- If the material does not contain the answer, say so.`

// BuildPrompt assembles the generation prompt from history, context blocks and the question.
func BuildPrompt(question string, blocks []string, history []Turn) string {
	var b strings.Builder

	for _, turn := range history {
		if turn.Question == "" && turn.Answer == "" {
			continue
		}
		b.WriteString("Previous question: ")
		b.WriteString(turn.Question)
		b.WriteString("\nPrevious answer: ")
		b.WriteString(turn.Answer)
		b.WriteString("\n")
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}

	b.WriteString(instructions)
	b.WriteString("\n\n[Context]\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	b.WriteString("\n\n[Question]\n")
	b.WriteString(question)
	b.WriteString("\n[Answer]\n")
	return b.String()
}
