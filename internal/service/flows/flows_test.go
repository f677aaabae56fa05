package flows

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medoai/internal/service/ai"
	"medoai/internal/upload"
)

type fakeCompleter struct {
	reply    string
	err      error
	calls    int
	requests []ai.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req ai.CompletionRequest) (string, error) {
	f.calls++
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func dataURI(mime string, body []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(body)
}

func TestChatRendersTaskAndLanguage(t *testing.T) {
	fc := &fakeCompleter{reply: "```json\n{\"response\": \"x = 2\"}\n```"}
	svc := NewService(fc, nil, nil)

	out, err := svc.Chat(context.Background(), ChatInput{
		Task:     TaskSolve,
		Message:  "2x = 4",
		Language: LanguageEnglish,
	})
	require.NoError(t, err)
	assert.Equal(t, "x = 2", out.Response)
	require.Len(t, fc.requests, 1)
	instr := fc.requests[0].Instruction
	assert.Contains(t, instr, "Task: solve")
	assert.Contains(t, instr, "2x = 4")
	assert.Contains(t, instr, "Respond in English.")
	assert.NotContains(t, instr, "Difficulty:")
	assert.Empty(t, fc.requests[0].Media)
}

func TestChatEmptyOutputFallsBack(t *testing.T) {
	for _, tc := range []struct {
		lang Language
		want string
	}{
		{LanguageArabic, chatFallbackArabic},
		{LanguageEnglish, chatFallbackEnglish},
		{"", chatFallbackArabic},
	} {
		svc := NewService(&fakeCompleter{reply: "  "}, nil, nil)
		out, err := svc.Chat(context.Background(), ChatInput{Task: TaskExplain, Message: "hi", Language: tc.lang})
		require.NoError(t, err)
		assert.Equal(t, tc.want, out.Response)
	}
}

func TestChatPlainTextReplyIsKept(t *testing.T) {
	svc := NewService(&fakeCompleter{reply: "plain answer"}, nil, nil)
	out, err := svc.Chat(context.Background(), ChatInput{Task: TaskExplain, Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "plain answer", out.Response)
}

func TestChatRejectsNonImageAttachmentWithoutCalling(t *testing.T) {
	fc := &fakeCompleter{reply: `{"response":"nope"}`}
	svc := NewService(fc, nil, nil)

	_, err := svc.Chat(context.Background(), ChatInput{
		Task:        TaskExplain,
		Message:     "read this",
		FileDataURI: dataURI("text/plain", []byte("hello")),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "fileDataUri", verr.Field)
	assert.Zero(t, fc.calls)
}

func TestChatAttachesImage(t *testing.T) {
	fc := &fakeCompleter{reply: `{"response":"a cat"}`}
	svc := NewService(fc, nil, nil)
	_, err := svc.Chat(context.Background(), ChatInput{
		Task:        TaskExplain,
		FileDataURI: dataURI("image/png", []byte{0x89, 'P', 'N', 'G'}),
	})
	require.NoError(t, err)
	require.Len(t, fc.requests[0].Media, 1)
	assert.Equal(t, "image/png", fc.requests[0].Media[0].MIMEType)
}

func TestChatValidation(t *testing.T) {
	fc := &fakeCompleter{}
	svc := NewService(fc, nil, nil)
	cases := []ChatInput{
		{Task: "translate", Message: "x"},
		{Task: TaskExplain, Message: "x", Difficulty: "extreme"},
		{Task: TaskExplain, Message: "x", Language: "fr"},
		{Task: TaskExplain, Message: "   "},
		{Task: TaskExplain, Message: "x", FileDataURI: "not-a-uri"},
	}
	for _, in := range cases {
		_, err := svc.Chat(context.Background(), in)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, "input %+v", in)
	}
	assert.Zero(t, fc.calls)
}

func TestChatTransportErrorIsReturned(t *testing.T) {
	svc := NewService(&fakeCompleter{err: errors.New("503")}, nil, nil)
	_, err := svc.Chat(context.Background(), ChatInput{Task: TaskExplain, Message: "x"})
	require.Error(t, err)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
}

func TestGenerateInteractiveDropsInvalidAndTruncates(t *testing.T) {
	fc := &fakeCompleter{reply: `{"questions": [
		{"question": "q1", "options": ["a","b","c","d"], "correctAnswerIndex": 1, "explanation": "e"},
		{"question": "q2", "options": ["a","b","c"], "correctAnswerIndex": 0, "explanation": "e"},
		{"question": "q3", "options": ["a","b","c","d"], "correctAnswerIndex": 4, "explanation": "e"},
		{"question": "q4", "options": ["a","b","c","d"], "correctAnswerIndex": 3, "explanation": "e"},
		{"question": "q5", "options": ["a","b","c","d"], "correctAnswerIndex": 0, "explanation": "e"}
	]}`}
	svc := NewService(fc, nil, nil)

	out, err := svc.GenerateQuestions(context.Background(), QuestionsInput{
		Context:       "photosynthesis",
		QuestionCount: 2,
		Difficulty:    DifficultyEasy,
		Mode:          ModeInteractive,
	})
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, "q1", out.Interactive[0].Question)
	assert.Equal(t, "q4", out.Interactive[1].Question)

	instr := fc.requests[0].Instruction
	assert.Contains(t, instr, "Generate exactly 2 questions.")
	assert.Contains(t, instr, "exactly 4 options")
	assert.Contains(t, instr, "must be in Arabic")
	assert.Equal(t, interactiveQuestionsShape, fc.requests[0].JSONShape)
}

func TestGenerateInteractiveDropsMissingAnswerIndex(t *testing.T) {
	fc := &fakeCompleter{reply: `{"questions": [
		{"question": "q1", "options": ["a","b","c","d"], "explanation": "no answer"},
		{"question": "q2", "options": ["a","b","c","d"], "correctAnswerIndex": null, "explanation": "null answer"},
		{"question": "q3", "options": ["a","b","c","d"], "correctAnswerIndex": 0, "explanation": "first option"}
	]}`}
	svc := NewService(fc, nil, nil)

	out, err := svc.GenerateQuestions(context.Background(), QuestionsInput{
		Context:       "cells",
		QuestionCount: 3,
		Difficulty:    DifficultyMedium,
		Language:      LanguageEnglish,
		Mode:          ModeInteractive,
	})
	require.NoError(t, err)
	require.Len(t, out.Interactive, 1)
	assert.Equal(t, "q3", out.Interactive[0].Question)
	assert.Equal(t, 0, out.Interactive[0].CorrectAnswerIndex)
}

func TestGenerateStaticEmptyOutput(t *testing.T) {
	svc := NewService(&fakeCompleter{reply: ""}, nil, nil)
	out, err := svc.GenerateQuestions(context.Background(), QuestionsInput{
		Context:       "x",
		QuestionCount: 3,
		Difficulty:    DifficultyHard,
		Language:      LanguageEnglish,
	})
	require.NoError(t, err)
	assert.Equal(t, ModeStatic, out.Mode)
	assert.Zero(t, out.Len())

	body, err := out.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"static","questions":[]}`, string(body))
}

func TestGenerateQuestionsValidation(t *testing.T) {
	fc := &fakeCompleter{}
	svc := NewService(fc, nil, nil)
	cases := []QuestionsInput{
		{Context: "x", QuestionCount: 0, Difficulty: DifficultyEasy},
		{Context: "x", QuestionCount: 21, Difficulty: DifficultyEasy},
		{Context: "x", QuestionCount: 5, Difficulty: "trivial"},
		{Context: "x", QuestionCount: 5, Difficulty: DifficultyEasy, Mode: "oral"},
		{Context: " ", QuestionCount: 5, Difficulty: DifficultyEasy},
		{Context: "x", QuestionCount: 5, Difficulty: DifficultyEasy, FileDataURI: dataURI("audio/webm", []byte("a"))},
	}
	for _, in := range cases {
		_, err := svc.GenerateQuestions(context.Background(), in)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, "input %+v", in)
	}
	assert.Zero(t, fc.calls)
}

func TestSummarizeFallbackIsLanguageSpecific(t *testing.T) {
	for _, reply := range []string{"", "not json", `{"summary": ""}`} {
		en := NewService(&fakeCompleter{reply: reply}, nil, nil)
		out, err := en.SummarizeTranscribedText(context.Background(), SummarizeInput{Text: "long text", Language: LanguageEnglish})
		require.NoError(t, err)
		assert.Equal(t, summaryFallbackEnglish, out.Summary)
		assert.NotEqual(t, summaryFallbackArabic, out.Summary)

		ar := NewService(&fakeCompleter{reply: reply}, nil, nil)
		out, err = ar.SummarizeTranscribedText(context.Background(), SummarizeInput{Text: "نص طويل", Language: LanguageArabic})
		require.NoError(t, err)
		assert.Equal(t, summaryFallbackArabic, out.Summary)
	}
}

func TestSummarizePromptFollowsLanguage(t *testing.T) {
	fc := &fakeCompleter{reply: `{"summary": "short"}`}
	svc := NewService(fc, nil, nil)

	out, err := svc.SummarizeTranscribedText(context.Background(), SummarizeInput{Text: "body", Language: LanguageEnglish})
	require.NoError(t, err)
	assert.Equal(t, "short", out.Summary)
	assert.True(t, strings.HasPrefix(fc.requests[0].Instruction, "Summarize the following text in English."))

	_, err = svc.SummarizeTranscribedText(context.Background(), SummarizeInput{Text: "body"})
	require.NoError(t, err)
	assert.Contains(t, fc.requests[1].Instruction, "باللغة العربية")
	assert.True(t, strings.HasSuffix(fc.requests[1].Instruction, "body"))
}

type fakeTranscriber struct{ got ai.Media }

func (f *fakeTranscriber) Transcribe(_ context.Context, audio ai.Media) (string, error) {
	f.got = audio
	return " مرحبا ", nil
}

func TestTranscribeUsesTranscriber(t *testing.T) {
	fc := &fakeCompleter{}
	ft := &fakeTranscriber{}
	svc := NewService(fc, ft, nil)

	out, err := svc.Transcribe(context.Background(), TranscribeInput{AudioDataURI: dataURI("audio/webm", []byte("opus"))})
	require.NoError(t, err)
	assert.Equal(t, "مرحبا", out.Text)
	assert.Equal(t, "audio/webm", ft.got.MIMEType)
	assert.Zero(t, fc.calls)
}

func TestTranscribeRejectsOversizedAudio(t *testing.T) {
	fc := &fakeCompleter{}
	ft := &fakeTranscriber{}
	svc := NewService(fc, ft, nil)

	big := make([]byte, upload.MaxFileBytes+1)
	_, err := svc.Transcribe(context.Background(), TranscribeInput{AudioDataURI: dataURI("audio/webm", big)})
	require.ErrorIs(t, err, upload.ErrFileTooLarge)
	assert.Nil(t, ft.got.Data)
	assert.Zero(t, fc.calls)
}

func TestTranscribeDefaultsToCompleterWithoutInstruction(t *testing.T) {
	fc := &fakeCompleter{reply: "hello"}
	svc := NewService(fc, nil, nil)

	out, err := svc.Transcribe(context.Background(), TranscribeInput{AudioDataURI: dataURI("audio/webm", []byte("opus"))})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Text)
	require.Len(t, fc.requests, 1)
	assert.Empty(t, fc.requests[0].Instruction)
	assert.Len(t, fc.requests[0].Media, 1)

	_, err = svc.Transcribe(context.Background(), TranscribeInput{AudioDataURI: dataURI("image/png", []byte("x"))})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	assert.True(t, decodeJSON(`{"a":1}`, &v))
	assert.True(t, decodeJSON("```json\n{\"a\":2}\n```", &v))
	assert.Equal(t, 2, v.A)
	assert.True(t, decodeJSON(`Here you go: {"a":3} enjoy`, &v))
	assert.Equal(t, 3, v.A)
	assert.False(t, decodeJSON("", &v))
	assert.False(t, decodeJSON("no json", &v))
}
