package generate

import (
	"fmt"
	"strings"
)

// Content kinds the app can request
const (
	KindResearch     = "research"
	KindPresentation = "presentation"
	KindMindmap      = "mindmap"
	KindQuiz         = "quiz"
)

var languages = map[string]string{
	"":   "Arabic", // default for the app's audience
	"ar": "Arabic",
	"en": "English",
}

var instructions = map[string]string{
	KindResearch: "Write a structured research paper with a title, an introduction, " +
		"numbered sections with headings, a conclusion and a short list of references.",
	KindPresentation: "Write the content of a slide presentation. Separate slides with a line " +
		"containing only ---. Each slide starts with a title line followed by at most five bullet points.",
	KindMindmap: "Produce a mind map as an indented Markdown list. The root is the topic, " +
		"with four to seven main branches and two to four leaves per branch.",
	KindQuiz: "Write a multiple-choice quiz of ten questions. Each question has four options " +
		"labelled A to D, followed by a line giving the correct answer.",
}

// Kinds lists the supported content kinds.
func Kinds() []string {
	return []string{KindResearch, KindPresentation, KindMindmap, KindQuiz}
}

func systemPrompt(kind, language string) string {
	return fmt.Sprintf("You are an educational writing assistant. %s Answer only in %s.",
		instructions[kind], language)
}

func userPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("Topic: ")
	sb.WriteString(strings.TrimSpace(req.Topic))
	if details := strings.TrimSpace(req.Details); details != "" {
		sb.WriteString("\nAdditional instructions: ")
		sb.WriteString(details)
	}
	return sb.String()
}
