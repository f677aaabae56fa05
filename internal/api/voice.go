package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"medoai/internal/files"
	"medoai/internal/pdf"
	"medoai/internal/service/ai"
	"medoai/internal/service/flows"
	"medoai/internal/upload"
)

func checkAudio(_ int64, contentType string) error {
	if !strings.HasPrefix(contentType, "audio/") {
		return fmt.Errorf("%w: %s", upload.ErrUnsupportedType, contentType)
	}
	return nil
}

// recording reads the audio part of a multipart form, or the audioDataUri
// field of a JSON body.
func recording(c *gin.Context, dataURI string) (string, error) {
	if !isMultipart(c) {
		return dataURI, nil
	}
	fh, err := c.FormFile("audio")
	if err != nil {
		return "", &flows.ValidationError{Field: "audio", Reason: "audio is required"}
	}
	media, err := readFormFile(fh, checkAudio)
	if err != nil {
		return "", err
	}
	return media.DataURI(), nil
}

func (h *Handler) transcribe(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		AudioDataURI string `json:"audioDataUri" form:"audioDataUri"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(requestLanguage(c), msgInvalidBody)})
		return
	}
	lang := requestLanguage(c)
	uri, err := recording(c, req.AudioDataURI)
	if err != nil {
		h.fail(c, lang, err, msgInvalidInput)
		return
	}
	var out flows.TranscribeOutput
	err = h.runJob(c, userID, func(ctx context.Context) error {
		var err error
		out, err = h.flows.Transcribe(ctx, flows.TranscribeInput{AudioDataURI: uri})
		return err
	})
	if err != nil {
		h.fail(c, lang, err, msgAIFailed)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) summarize(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
		Lang string `json:"lang"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(requestLanguage(c), msgInvalidBody)})
		return
	}
	lang := requestLanguage(c, req.Lang)
	var out flows.SummarizeOutput
	err := h.runJob(c, userID, func(ctx context.Context) error {
		var err error
		out, err = h.flows.SummarizeTranscribedText(ctx, flows.SummarizeInput{
			Text:     req.Text,
			Language: explicitOr(req.Lang, lang),
		})
		return err
	})
	if err != nil {
		h.fail(c, lang, err, msgAIFailed)
		return
	}
	c.JSON(http.StatusOK, out)
}

// saveRecording stores a named recording as audio/webm with a metadata record.
func (h *Handler) saveRecording(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	lang := requestLanguage(c)
	var req struct {
		Name         string `json:"name" form:"name"`
		AudioDataURI string `json:"audioDataUri" form:"audioDataUri"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(lang, msgInvalidBody)})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(lang, msgRecordingRequired), "field": "name"})
		return
	}
	uri, err := recording(c, req.AudioDataURI)
	if err != nil {
		h.fail(c, lang, err, msgInvalidInput)
		return
	}
	media, err := ai.ParseDataURI(uri)
	if err != nil || len(media.Data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(lang, msgRecordingRequired), "field": "audio"})
		return
	}
	if err := upload.CheckSize(int64(len(media.Data))); err != nil {
		h.fail(c, lang, err, msgInvalidInput)
		return
	}

	rec, err := h.files.Save(c.Request.Context(), userID, files.NewFile{
		Name:        name + ".webm",
		ContentType: "audio/webm",
		Size:        int64(len(media.Data)),
		Reader:      bytes.NewReader(media.Data),
		Dir:         files.AudioDir(userID),
	}, nil)
	if err != nil {
		h.fail(c, lang, err, msgStorageFailed)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"file": rec})
}

func (h *Handler) exportTranscript(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	lang := requestLanguage(c)
	var req struct {
		Original string `json:"original"`
		Summary  string `json:"summary"`
		Format   string `json:"format"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(lang, msgInvalidBody)})
		return
	}
	format := pdf.ExportFormat(strings.ToLower(strings.TrimSpace(req.Format)))
	if format != "" && format != pdf.FormatText && format != pdf.FormatPDF {
		h.fail(c, lang, &flows.ValidationError{Field: "format", Reason: fmt.Sprintf("unsupported format %q", req.Format)}, msgInvalidInput)
		return
	}
	export, err := h.exporter.Export(req.Original, req.Summary, format)
	if err != nil {
		h.fail(c, lang, err, msgInternal)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName))
	c.Data(http.StatusOK, export.ContentType, export.Bytes)
}
