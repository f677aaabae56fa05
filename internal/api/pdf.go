package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"medoai/internal/pdf"
	"medoai/internal/upload"
)

// createPDF turns the uploaded images into one PDF, a page per image in
// upload order, and returns it as a download.
func (h *Handler) createPDF(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	lang := requestLanguage(c)
	if err := c.Request.ParseMultipartForm(maxMultipartMemory); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": message(lang, msgInvalidBody)})
		return
	}
	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		h.fail(c, lang, pdf.ErrMissingName, msgInvalidInput)
		return
	}
	var headers []*multipart.FileHeader
	for _, field := range []string{"images", "images[]"} {
		headers = append(headers, c.Request.MultipartForm.File[field]...)
	}
	if len(headers) > pdf.MaxImages {
		h.fail(c, lang, fmt.Errorf("%w: %d", pdf.ErrTooManyImages, len(headers)), msgInvalidInput)
		return
	}
	images := make([]pdf.Image, 0, len(headers))
	for _, fh := range headers {
		data, err := readImage(fh)
		if err != nil {
			status, key := classify(err, msgInternal)
			c.JSON(status, gin.H{"error": message(lang, key), "file": fh.Filename})
			return
		}
		images = append(images, pdf.Image{Name: fh.Filename, Data: data})
	}

	doc, err := pdf.Assemble(name, images)
	if err != nil {
		h.fail(c, lang, err, msgInternal)
		return
	}
	h.log.Info("pdf assembled", "file", doc.FileName, "pages", doc.PageCount)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, strings.ReplaceAll(doc.FileName, `"`, "")))
	c.Data(http.StatusOK, "application/pdf", doc.Bytes)
}

// readImage reads one part after checking its size, and rejects anything
// that does not sniff as an image.
func readImage(fh *multipart.FileHeader) ([]byte, error) {
	if err := upload.CheckSize(fh.Size); err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, upload.MaxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	if err := upload.CheckSize(int64(len(data))); err != nil {
		return nil, err
	}
	if contentType := detectType(data, fh.Header.Get("Content-Type")); !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: %s", upload.ErrUnsupportedType, contentType)
	}
	return data, nil
}
