package answer

import (
	"strings"

	"github.com/soilwise/soilwise/internal/store"
)

// HistoryWindow is how many recent conversation turns the prompt carries.
const HistoryWindow = 5

const systemPreamble = `You are an expert AI assistant specializing in geotechnical engineering and soil mechanics.

Your task is to answer questions accurately using the provided context from technical documents.

Guidelines:
- Use the provided context to answer questions
- If the context contains relevant information, cite the sources
- If the context doesn't have enough information, say so and provide general knowledge if helpful
- Be concise but thorough
- Use technical terminology appropriately
- Format your response clearly`

// Turn is one message of the conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// assembleContext renders retrieval results as source-annotated blocks and
// collects the distinct source filenames in first-seen order.
func assembleContext(results []store.SearchResult) (context string, sources []string) {
	if len(results) == 0 {
		return "", nil
	}

	blocks := make([]string, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		blocks = append(blocks, "[Source: "+r.SourceFilename+"]\n"+r.Content)
		if _, ok := seen[r.SourceFilename]; !ok {
			seen[r.SourceFilename] = struct{}{}
			sources = append(sources, r.SourceFilename)
		}
	}
	return strings.Join(blocks, "\n\n"), sources
}

// buildPrompt assembles the synthesis prompt: preamble, recent history,
// retrieval context, then the question, in that fixed order.
func buildPrompt(query, context string, history []Turn) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n")

	if len(history) > 0 {
		if len(history) > HistoryWindow {
			history = history[len(history)-HistoryWindow:]
		}
		b.WriteString("\nCONVERSATION HISTORY:\n")
		for _, turn := range history {
			role := strings.ToUpper(turn.Role)
			if role == "" {
				role = "USER"
			}
			b.WriteString(role)
			b.WriteString(": ")
			b.WriteString(turn.Content)
			b.WriteString("\n")
		}
	}

	if strings.TrimSpace(context) != "" {
		b.WriteString("\nRELEVANT CONTEXT FROM DOCUMENTS:\n")
		b.WriteString(context)
		b.WriteString("\n")
	} else {
		b.WriteString("\n[No relevant documents found in the knowledge base]\n")
	}

	b.WriteString("\nUSER QUESTION: ")
	b.WriteString(query)
	b.WriteString("\n\nPlease provide a detailed answer:")
	return b.String()
}
