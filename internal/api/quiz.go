package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"medoai/internal/quiz"
	"medoai/internal/service/flows"
	"medoai/internal/upload"
)

type quizSettingsRequest struct {
	Context       string `json:"context" form:"context"`
	QuestionCount int    `json:"questionCount" form:"questionCount"`
	Difficulty    string `json:"difficulty" form:"difficulty"`
	Language      string `json:"language" form:"language"`
	FileDataURI   string `json:"fileDataUri" form:"fileDataUri"`
}

// bindQuizSettings reads settings from JSON or a multipart form with an
// optional image or PDF. A nil result with ok=true means no body was sent.
func (h *Handler) bindQuizSettings(c *gin.Context, lang flows.Language, optional bool) (*quiz.Settings, bool) {
	if optional && c.Request.ContentLength == 0 {
		return nil, true
	}
	var req quizSettingsRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(lang, msgInvalidBody)})
		return nil, false
	}
	if isMultipart(c) {
		uri, err := formAttachment(c, "file", upload.CheckAttachment)
		if err != nil {
			h.fail(c, lang, err, msgInvalidInput)
			return nil, false
		}
		if uri != "" {
			req.FileDataURI = uri
		}
	}
	if strings.TrimSpace(req.Context) == "" && req.FileDataURI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(lang, msgContentRequired), "field": "context"})
		return nil, false
	}
	return &quiz.Settings{
		Context:       req.Context,
		FileDataURI:   req.FileDataURI,
		QuestionCount: req.QuestionCount,
		Difficulty:    defaultDifficulty(req.Difficulty),
		Language:      explicitOr(req.Language, lang),
	}, true
}

func (h *Handler) createQuiz(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	lang := requestLanguage(c)
	settings, ok := h.bindQuizSettings(c, lang, false)
	if !ok {
		return
	}
	var sess *quiz.Session
	err := h.runJob(c, userID, func(ctx context.Context) error {
		var err error
		sess, err = h.quiz.Create(ctx, userID, *settings)
		return err
	})
	h.respondGenerated(c, lang, http.StatusCreated, sess, err)
}

// regenerateQuiz runs generation again after a restart. Settings in the body
// replace the stored ones; an empty body reuses them.
func (h *Handler) regenerateQuiz(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	lang := requestLanguage(c)
	settings, ok := h.bindQuizSettings(c, lang, true)
	if !ok {
		return
	}
	id := c.Param("id")
	var sess *quiz.Session
	err := h.runJob(c, userID, func(ctx context.Context) error {
		var err error
		sess, err = h.quiz.Generate(ctx, userID, id, settings)
		return err
	})
	h.respondGenerated(c, lang, http.StatusOK, sess, err)
}

// respondGenerated reports an empty question set as a fallback with the
// session, which is back in configuring.
func (h *Handler) respondGenerated(c *gin.Context, lang flows.Language, status int, sess *quiz.Session, err error) {
	if errors.Is(err, quiz.ErrNoQuestions) && sess != nil {
		c.JSON(http.StatusOK, gin.H{
			"quiz":    sess,
			"message": message(lang, msgNoQuestions),
		})
		return
	}
	if err != nil {
		h.fail(c, lang, err, msgAIFailed)
		return
	}
	c.JSON(status, gin.H{"quiz": sess})
}

func (h *Handler) getQuiz(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sess, err := h.quiz.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.fail(c, requestLanguage(c), err, msgInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"quiz":           sess,
		"canShowResults": sess.CanShowResults(),
	})
}

func (h *Handler) answerQuiz(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	lang := requestLanguage(c)
	var req struct {
		QuestionIndex *int `json:"questionIndex"`
		OptionIndex   *int `json:"optionIndex"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.QuestionIndex == nil || req.OptionIndex == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(lang, msgInvalidBody)})
		return
	}
	sess, err := h.quiz.Answer(c.Request.Context(), userID, c.Param("id"), *req.QuestionIndex, *req.OptionIndex)
	if err != nil {
		h.fail(c, lang, err, msgInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"quiz":           sess,
		"canShowResults": sess.CanShowResults(),
	})
}

func (h *Handler) quizResults(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sess, res, err := h.quiz.Results(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.fail(c, requestLanguage(c), err, msgInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"quiz":   sess,
		"result": res,
	})
}

func (h *Handler) restartQuiz(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sess, err := h.quiz.Restart(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.fail(c, requestLanguage(c), err, msgInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quiz": sess})
}
