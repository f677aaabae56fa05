package api

import (
	"bufio"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"medoai/internal/blob"
	"medoai/internal/files"
	"medoai/internal/models"
	"medoai/internal/upload"
)

func (h *Handler) listFiles(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	list, err := h.files.List(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, requestLanguage(c), err, msgStorageFailed)
		return
	}
	if list == nil {
		list = make([]*models.UploadedFile, 0)
	}
	c.JSON(http.StatusOK, gin.H{"files": list})
}

// watchFiles streams the listing as SSE: one "files" event now and one after
// every change, until the client goes away.
func (h *Handler) watchFiles(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	updates, err := h.files.Watch(ctx, userID)
	if err != nil {
		h.fail(c, requestLanguage(c), err, msgStorageFailed)
		return
	}
	sendEvent, ok := eventStream(c)
	if !ok {
		return
	}
	for list := range updates {
		if list == nil {
			list = make([]*models.UploadedFile, 0)
		}
		if err := sendEvent("files", gin.H{"files": list}); err != nil {
			return
		}
	}
}

// uploadFiles stores every file in files[] concurrently and streams progress.
// Size is checked for the whole batch before any byte is stored.
func (h *Handler) uploadFiles(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	lang := requestLanguage(c)
	if err := c.Request.ParseMultipartForm(maxMultipartMemory); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(lang, msgInvalidBody)})
		return
	}
	var headers []*multipart.FileHeader
	for _, field := range []string{"files", "files[]", "file"} {
		headers = append(headers, c.Request.MultipartForm.File[field]...)
	}
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(lang, msgNoFiles)})
		return
	}
	for _, fh := range headers {
		if err := upload.CheckSize(fh.Size); err != nil {
			status, key := classify(err, msgInvalidInput)
			c.JSON(status, gin.H{"error": message(lang, key), "file": fh.Filename})
			return
		}
	}

	sources := make([]upload.Source, len(headers))
	for i, fh := range headers {
		contentType, err := sniffHeader(fh)
		if err != nil {
			h.fail(c, lang, err, msgStorageFailed)
			return
		}
		sources[i] = upload.Source{
			Name:        fh.Filename,
			ContentType: contentType,
			Size:        fh.Size,
			Open:        func() (io.ReadCloser, error) { return fh.Open() },
		}
	}

	sendEvent, ok := eventStream(c)
	if !ok {
		return
	}
	res := h.uploads.Run(c.Request.Context(), userID, sources, func(ev upload.Event) {
		switch ev.Kind {
		case upload.EventProgress:
			_ = sendEvent("progress", gin.H{"index": ev.Index, "progress": ev.Progress})
		case upload.EventSettled:
			payload := gin.H{"index": ev.Index, "name": ev.Outcome.Name, "progress": ev.Outcome.Progress}
			if ev.Outcome.Err != nil {
				status, key := classify(ev.Outcome.Err, msgStorageFailed)
				payload["error"] = message(lang, key)
				payload["status"] = status
				var perr *files.PermissionError
				if errors.As(ev.Outcome.Err, &perr) {
					payload["diagnostic"] = gin.H{"path": perr.Path, "operation": perr.Operation}
				}
			} else {
				payload["record"] = ev.Outcome.Record
			}
			_ = sendEvent("file", payload)
		}
	})
	_ = sendEvent("done", gin.H{
		"succeeded": res.Succeeded,
		"total":     res.Total,
		"message":   res.Summary(),
	})
}

// sniffHeader detects the type from the first 512 bytes of an uploaded part.
func sniffHeader(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := io.ReadFull(f, buf)
	return detectType(buf[:n], fh.Header.Get("Content-Type")), nil
}

func (h *Handler) deleteFile(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	outcome, rec, err := h.files.Delete(c.Request.Context(), userID, id)
	if err != nil {
		h.fail(c, requestLanguage(c), err, msgStorageFailed)
		return
	}
	body := gin.H{"id": id, "outcome": outcome}
	if rec != nil {
		body["fileName"] = rec.FileName
	}
	c.JSON(http.StatusOK, body)
}

// downloadBlob serves local-backend objects behind sealed tokens.
func (h *Handler) downloadBlob(c *gin.Context) {
	lang := requestLanguage(c)
	if h.blobs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": message(lang, msgFileNotFound)})
		return
	}
	rc, key, err := h.blobs.Open(c.Param("token"))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": message(lang, msgFileNotFound)})
			return
		}
		h.fail(c, lang, err, msgStorageFailed)
		return
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	head, _ := br.Peek(512)
	name := key[strings.LastIndex(key, "/")+1:]
	c.Header("Content-Disposition", `inline; filename="`+strings.ReplaceAll(name, `"`, "")+`"`)
	c.Header("Cache-Control", "private, max-age=3600")
	c.DataFromReader(http.StatusOK, -1, http.DetectContentType(head), br, nil)
}
