package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"medoai/internal/service/ai"
	"medoai/internal/service/flows"
	"medoai/internal/upload"
)

// maxMultipartMemory bounds what a multipart form keeps in memory before spilling to disk.
const maxMultipartMemory = 32 << 20

type chatRequest struct {
	Task        string `json:"task" form:"task"`
	Difficulty  string `json:"difficulty" form:"difficulty"`
	Message     string `json:"message" form:"message"`
	Lang        string `json:"lang" form:"lang"`
	FileDataURI string `json:"fileDataUri" form:"fileDataUri"`
}

func (h *Handler) chat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(requestLanguage(c), msgInvalidBody)})
		return
	}
	lang := requestLanguage(c, req.Lang)
	if isMultipart(c) {
		uri, err := formAttachment(c, "file", upload.CheckAttachment)
		if err != nil {
			h.fail(c, lang, err, msgInvalidInput)
			return
		}
		if uri != "" {
			req.FileDataURI = uri
		}
	}

	in := flows.ChatInput{
		Task:        flows.Task(strings.TrimSpace(req.Task)),
		Difficulty:  flows.Difficulty(strings.TrimSpace(req.Difficulty)),
		Message:     req.Message,
		FileDataURI: req.FileDataURI,
		Language:    explicitOr(req.Lang, lang),
	}
	var out flows.ChatOutput
	err := h.runJob(c, userID, func(ctx context.Context) error {
		var err error
		out, err = h.flows.Chat(ctx, in)
		return err
	})
	if err != nil {
		h.fail(c, lang, err, msgAIFailed)
		return
	}
	c.JSON(http.StatusOK, out)
}

type questionsRequest struct {
	Context       string `json:"context" form:"context"`
	QuestionCount int    `json:"questionCount" form:"questionCount"`
	Difficulty    string `json:"difficulty" form:"difficulty"`
	Language      string `json:"language" form:"language"`
	Mode          string `json:"mode" form:"mode"`
	FileDataURI   string `json:"fileDataUri" form:"fileDataUri"`
}

func (h *Handler) generateQuestions(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req questionsRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(requestLanguage(c), msgInvalidBody)})
		return
	}
	lang := requestLanguage(c, req.Language)
	if isMultipart(c) {
		uri, err := formAttachment(c, "file", upload.CheckAttachment)
		if err != nil {
			h.fail(c, lang, err, msgInvalidInput)
			return
		}
		if uri != "" {
			req.FileDataURI = uri
		}
	}
	if strings.TrimSpace(req.Context) == "" && req.FileDataURI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(lang, msgContentRequired), "field": "context"})
		return
	}

	in := flows.QuestionsInput{
		Context:       req.Context,
		FileDataURI:   req.FileDataURI,
		QuestionCount: req.QuestionCount,
		Difficulty:    defaultDifficulty(req.Difficulty),
		Language:      explicitOr(req.Language, lang),
		Mode:          flows.Mode(strings.TrimSpace(req.Mode)),
	}
	var out flows.QuestionsOutput
	err := h.runJob(c, userID, func(ctx context.Context) error {
		var err error
		out, err = h.flows.GenerateQuestions(ctx, in)
		return err
	})
	if err != nil {
		h.fail(c, lang, err, msgAIFailed)
		return
	}
	if out.Len() == 0 {
		c.JSON(http.StatusOK, gin.H{
			"mode":      out.Mode,
			"questions": []struct{}{},
			"message":   message(lang, msgNoQuestions),
		})
		return
	}
	c.JSON(http.StatusOK, out)
}

// explicitOr keeps a client-supplied language as-is so the flow can reject a
// bad value; otherwise the negotiated one is used.
func explicitOr(explicit string, negotiated flows.Language) flows.Language {
	if v := strings.TrimSpace(explicit); v != "" {
		return flows.Language(strings.ToLower(v))
	}
	return negotiated
}

func defaultDifficulty(raw string) flows.Difficulty {
	if v := strings.TrimSpace(raw); v != "" {
		return flows.Difficulty(v)
	}
	return flows.DifficultyMedium
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// formAttachment reads an optional multipart file and returns it as a data
// URI. check runs on the declared size before any byte is read and again on
// the sniffed type.
func formAttachment(c *gin.Context, field string, check func(size int64, contentType string) error) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", &flows.ValidationError{Field: field, Reason: err.Error()}
	}
	media, err := readFormFile(fh, check)
	if err != nil {
		return "", err
	}
	return media.DataURI(), nil
}

func readFormFile(fh *multipart.FileHeader, check func(size int64, contentType string) error) (ai.Media, error) {
	if err := upload.CheckSize(fh.Size); err != nil {
		return ai.Media{}, err
	}
	f, err := fh.Open()
	if err != nil {
		return ai.Media{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, upload.MaxFileBytes+1))
	if err != nil {
		return ai.Media{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	contentType := detectType(data, fh.Header.Get("Content-Type"))
	if check != nil {
		if err := check(int64(len(data)), contentType); err != nil {
			return ai.Media{}, err
		}
	}
	return ai.Media{MIMEType: contentType, Data: data, Name: fh.Filename}, nil
}

// detectType sniffs the first 512 bytes. The declared type wins when sniffing
// cannot tell, and for audio, which browsers record into video containers.
func detectType(data []byte, declared string) string {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	sniffed := upload.NormalizeType(http.DetectContentType(head))
	declared = upload.NormalizeType(declared)
	if declared == "" {
		return sniffed
	}
	if sniffed == "application/octet-stream" {
		return declared
	}
	if strings.HasPrefix(declared, "audio/") && strings.HasPrefix(sniffed, "video/") {
		return declared
	}
	return sniffed
}
