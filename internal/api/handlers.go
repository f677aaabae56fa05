package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"medoai/internal/auth"
	"medoai/internal/blob"
	"medoai/internal/files"
	"medoai/internal/logger"
	"medoai/internal/models"
	"medoai/internal/pdf"
	"medoai/internal/quiz"
	"medoai/internal/service/ai"
	"medoai/internal/service/flows"
	"medoai/internal/upload"
	"medoai/internal/worker"
)

// JobRunner runs AI work on behalf of a user, bounded and fair across users.
type JobRunner interface {
	Do(ctx context.Context, userID string, fn func(ctx context.Context) error) error
}

// Options carries the services the handler routes to. LocalBlobs is only set
// for the local blob backend, which serves its own downloads.
type Options struct {
	Auth       *auth.Service
	Files      *files.Service
	Uploads    *upload.Pipeline
	Flows      *flows.Service
	Quiz       *quiz.Service
	Jobs       JobRunner
	Exporter   pdf.Exporter
	LocalBlobs *blob.LocalStore
	RateLimit  int
	RateWindow time.Duration
	Logger     *logger.Logger
}

// Handler wires HTTP routes to the flows, storage and quiz services.
type Handler struct {
	auth     *auth.Service
	files    *files.Service
	uploads  *upload.Pipeline
	flows    *flows.Service
	quiz     *quiz.Service
	jobs     JobRunner
	exporter pdf.Exporter
	blobs    *blob.LocalStore
	limiter  *rateLimiter
	log      *logger.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		auth:     opts.Auth,
		files:    opts.Files,
		uploads:  opts.Uploads,
		flows:    opts.Flows,
		quiz:     opts.Quiz,
		jobs:     opts.Jobs,
		exporter: opts.Exporter,
		blobs:    opts.LocalBlobs,
		limiter:  newRateLimiter(opts.RateLimit, opts.RateWindow),
		log:      log.With("component", "api"),
	}
}

func (h *Handler) authorizedUserID(c *gin.Context) (string, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": message(requestLanguage(c), msgAuthRequired)})
		return "", false
	}
	return userID, true
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.healthz)

	api := router.Group("/api")
	api.POST("/auth/anonymous", h.signInAnonymously)
	api.POST("/auth/signup", h.signUp)
	api.POST("/auth/signin", h.signIn)
	api.GET("/blobs/:token", h.downloadBlob)

	user := api.Group("")
	user.Use(h.auth.Middleware(h.deny), h.auth.CSRFMiddleware(h.deny))
	user.POST("/auth/logout", h.logout)
	user.GET("/me", h.me)

	aiRoutes := user.Group("/ai")
	aiRoutes.Use(h.rateLimit())
	aiRoutes.POST("/chat", h.chat)
	aiRoutes.POST("/questions", h.generateQuestions)

	quizzes := user.Group("/quiz")
	quizzes.POST("", h.rateLimit(), h.createQuiz)
	quizzes.GET("/:id", h.getQuiz)
	quizzes.POST("/:id/generate", h.rateLimit(), h.regenerateQuiz)
	quizzes.POST("/:id/answers", h.answerQuiz)
	quizzes.POST("/:id/results", h.quizResults)
	quizzes.POST("/:id/restart", h.restartQuiz)

	user.GET("/files", h.listFiles)
	user.GET("/files/watch", h.watchFiles)
	user.POST("/files", h.uploadFiles)
	user.DELETE("/files/:id", h.deleteFile)

	voice := user.Group("/voice")
	voice.POST("/transcribe", h.rateLimit(), h.transcribe)
	voice.POST("/summarize", h.rateLimit(), h.summarize)
	voice.POST("/save", h.saveRecording)
	voice.POST("/export", h.exportTranscript)

	user.POST("/pdf", h.createPDF)
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// runJob sends AI work through the dispatcher so one user cannot flood the providers.
func (h *Handler) runJob(c *gin.Context, userID string, fn func(ctx context.Context) error) error {
	if h.jobs == nil {
		return fn(c.Request.Context())
	}
	return h.jobs.Do(c.Request.Context(), userID, fn)
}

// fail maps err onto a status and a localized message. fallback names the
// message used for backend failures that have no more specific key.
func (h *Handler) fail(c *gin.Context, lang flows.Language, err error, fallback msgKey) {
	status, key := classify(err, fallback)
	body := gin.H{"error": message(lang, key)}

	var verr *flows.ValidationError
	if errors.As(err, &verr) {
		body["field"] = verr.Field
		body["detail"] = verr.Reason
	}
	var perr *files.PermissionError
	if errors.As(err, &perr) {
		body["diagnostic"] = gin.H{"path": perr.Path, "operation": perr.Operation}
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"error", err,
		)
	}
	c.JSON(status, body)
}

// deny localizes rejections from the auth middlewares.
func (h *Handler) deny(c *gin.Context, status int, err error) {
	key := msgAuthRequired
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		key = msgSessionExpired
	case errors.Is(err, auth.ErrCSRFMismatch):
		key = msgCSRF
	case status >= http.StatusInternalServerError:
		key = msgUnavailable
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message(requestLanguage(c), key)})
}

func classify(err error, fallback msgKey) (int, msgKey) {
	var (
		verr *flows.ValidationError
		perr *files.PermissionError
		derr *pdf.DecodeError
	)
	switch {
	case errors.Is(err, upload.ErrFileTooLarge), errors.Is(err, pdf.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, msgFileTooLarge
	case errors.Is(err, upload.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, msgUnsupportedType
	case errors.Is(err, upload.ErrEmptyFile):
		return http.StatusBadRequest, msgEmptyFile
	case errors.As(err, &verr), errors.Is(err, ai.ErrInvalidDataURI):
		return http.StatusBadRequest, msgInvalidInput
	case errors.As(err, &perr):
		return http.StatusInternalServerError, msgPermissionDenied
	case errors.Is(err, worker.ErrDispatcherBusy):
		return http.StatusTooManyRequests, msgBusy
	case errors.Is(err, worker.ErrStopped), errors.Is(err, worker.ErrJobCancelled):
		return http.StatusServiceUnavailable, msgUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, msgUnavailable
	case errors.Is(err, quiz.ErrNotFound):
		return http.StatusNotFound, msgQuizNotFound
	case errors.Is(err, quiz.ErrOutOfRange):
		return http.StatusBadRequest, msgQuizRange
	case errors.Is(err, quiz.ErrIncomplete):
		return http.StatusConflict, msgQuizIncomplete
	case errors.Is(err, quiz.ErrInvalidState), errors.Is(err, quiz.ErrGenerationBusy):
		return http.StatusConflict, msgQuizState
	case errors.Is(err, quiz.ErrFileRequired):
		return http.StatusBadRequest, msgContentRequired
	case errors.Is(err, quiz.ErrNoQuestions):
		return http.StatusUnprocessableEntity, msgNoQuestions
	case errors.Is(err, files.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, msgFileNotFound
	case errors.Is(err, pdf.ErrNoImages):
		return http.StatusBadRequest, msgNoImages
	case errors.Is(err, pdf.ErrTooManyImages):
		return http.StatusBadRequest, msgTooManyImages
	case errors.Is(err, pdf.ErrMissingName):
		return http.StatusBadRequest, msgPDFNameRequired
	case errors.As(err, &derr):
		return http.StatusUnprocessableEntity, msgImageDecode
	case errors.Is(err, pdf.ErrEmptyTranscript):
		return http.StatusBadRequest, msgNothingToExport
	case errors.Is(err, pdf.ErrFontRequired):
		return http.StatusBadRequest, msgPDFFontMissing
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, msgInvalidCreds
	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict, msgEmailTaken
	case errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusBadRequest, msgInvalidEmail
	case errors.Is(err, auth.ErrWeakPassword):
		return http.StatusBadRequest, msgWeakPassword
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, msgUserNotFound
	}
	if fallback == "" {
		fallback = msgInternal
	}
	return http.StatusInternalServerError, fallback
}

// Auth endpoints
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) signInAnonymously(c *gin.Context) {
	user, err := h.auth.CreateAnonymous(c.Request.Context())
	if err != nil {
		h.fail(c, requestLanguage(c), err, msgInternal)
		return
	}
	h.startSession(c, user, http.StatusCreated)
}

func (h *Handler) signUp(c *gin.Context) {
	lang := requestLanguage(c)
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(lang, msgInvalidBody)})
		return
	}
	user, err := h.auth.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, lang, err, msgInternal)
		return
	}
	h.startSession(c, user, http.StatusCreated)
}

func (h *Handler) signIn(c *gin.Context) {
	lang := requestLanguage(c)
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(lang, msgInvalidBody)})
		return
	}
	user, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, lang, err, msgInternal)
		return
	}
	h.startSession(c, user, http.StatusOK)
}

// startSession issues the auth token and CSRF cookie pair for user.
func (h *Handler) startSession(c *gin.Context, user *models.User, status int) {
	lang := requestLanguage(c)
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, lang, fmt.Errorf("issue token: %w", err), msgInternal)
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		h.fail(c, lang, fmt.Errorf("issue csrf token: %w", err), msgInternal)
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(status, gin.H{
		"user":       user,
		"auth_token": authToken,
		"csrf_token": csrfToken,
	})
}

func (h *Handler) logout(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.RevokeToken(c.Request.Context(), authToken); err != nil {
			h.log.Warn("revoke token", "error", err)
		}
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	user, err := h.auth.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, requestLanguage(c), err, msgInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}

// eventStream switches the response to SSE and returns the event writer.
func eventStream(c *gin.Context) (func(event string, payload interface{}) error, bool) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": message(requestLanguage(c), msgStreaming)})
		return nil, false
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		var data []byte
		switch v := payload.(type) {
		case string:
			data = []byte(v)
		default:
			var err error
			data, err = json.Marshal(v)
			if err != nil {
				return err
			}
		}
		if event != "" {
			if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	return sendEvent, true
}
