package service

import (
	"context"
	"fmt"
	"strings"
)

// NoMatchResponse is the answer given when the question matches nothing.
const NoMatchResponse = "I couldn't find any discussion about that topic in the video."

// systemPrompt constrains a generator to the supplied transcript segment.
const systemPrompt = `You are an assistant that summarizes video transcript segments.
Your responses must:
1. Only use information explicitly stated in the transcript
2. Be specific about what's being discussed
3. Include relevant details and comparisons mentioned
4. Never add external information or assumptions
5. If features or technical details are mentioned, include them`

// Prompt is what a Generator receives for one question.
type Prompt struct {
	System   string
	User     string
	Context  string
	Question string
}

// Generator turns an assembled context into prose.
// Delivery is at most once per Answer call; failures are not retried here.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// BuildPrompt assembles the generator prompt for a context and question.
func BuildPrompt(contextText, question string) Prompt {
	var user strings.Builder
	fmt.Fprintf(&user, "Here is a segment from the video transcript around the most relevant part:\n\n%s\n\n", contextText)
	fmt.Fprintf(&user, "Question: %s\n\n", question)
	user.WriteString("Based ONLY on this transcript segment, explain what is being discussed or described. ")
	user.WriteString("Be specific and accurate to the transcript content. ")
	user.WriteString("Do not add any external information not present in this transcript.")

	return Prompt{
		System:   systemPrompt,
		User:     user.String(),
		Context:  contextText,
		Question: question,
	}
}

// ExtractiveGenerator answers with the retrieved context itself.
// It is the default when no text-generation backend is configured.
type ExtractiveGenerator struct{}

// Generate implements Generator.
func (ExtractiveGenerator) Generate(_ context.Context, prompt Prompt) (string, error) {
	return prompt.Context, nil
}
