package flows

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

const chatTemplate = `You are an expert AI assistant specialized in various fields including accounting, mathematics, programming, and general sciences. Your task is to process user requests based on the provided text and optional file.

Task: {{.task}}
{{- if .difficulty}}
Difficulty: {{.difficulty}}
{{- end}}

User Message:
{{.message}}
{{if .hasFile}}
The attached file is part of the request.
{{end}}
Instructions:
{{- if eq .task "explain"}}
- Provide a clear and concise explanation of the content in the message or the attached file.
{{- else if eq .task "solve"}}
- Solve the complex question provided. If it is a code snippet, debug it, correct it, and provide an organized, well-formatted version with explanations.
{{- else if eq .task "generate"}}
- Create {{.difficulty}} questions from the content of the message or file.
{{- else}}
- Provide a concise summary of the content in the message or the attached file.
{{- end}}
- Respond in {{.languageName}}.
`

const chatShape = `{"response": string}`

const questionsTemplate = `You are an expert in creating educational content. Your task is to generate a specific number of questions based on the provided context (text or file).

Context:
{{.context}}
{{if .hasFile}}
The attached file is part of the context.
{{end}}
Instructions:
- Generate exactly {{.questionCount}} questions.
- The difficulty of the questions should be: {{.difficulty}}.
{{- if .interactive}}
- Each question is multiple choice with exactly 4 options.
- Give the zero-based index of the correct option and a brief explanation for why it is correct.
{{- else}}
- For each question, provide the question itself, the correct answer, and a brief explanation for the answer.
{{- end}}
- The entire output (questions, answers, explanations) must be in {{.languageName}}.
`

const staticQuestionsShape = `{"questions": [{"question": string, "answer": string, "explanation": string}]}`

const interactiveQuestionsShape = `{"questions": [{"question": string, "options": [string, string, string, string], "correctAnswerIndex": integer 0-3, "explanation": string}]}`

const summarizeTemplate = `{{if eq .language "en" -}}
Summarize the following text in English. Keep the summary brief and clear. Original text:
{{- else -}}
قم بتلخيص النص التالي باللغة العربية. اجعل الملخص موجزًا وواضحًا. النص الأصلي:
{{- end}}

{{.text}}`

const summaryShape = `{"summary": string}`

// render formats a single user-message template with Go template syntax.
func render(ctx context.Context, tpl string, vars map[string]any) (string, error) {
	msgs, err := prompt.FromMessages(schema.GoTemplate, schema.UserMessage(tpl)).Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("render prompt: no messages")
	}
	return msgs[0].Content, nil
}
