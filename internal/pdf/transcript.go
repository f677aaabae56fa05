package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-pdf/fpdf"
)

type ExportFormat string

const (
	FormatText ExportFormat = "txt"
	FormatPDF  ExportFormat = "pdf"
)

var (
	ErrEmptyTranscript = errors.New("nothing to export")
	ErrFontRequired    = errors.New("pdf export needs a unicode font")
)

// Export is a downloadable transcript.
type Export struct {
	FileName    string
	ContentType string
	Bytes       []byte
}

// TranscriptContent joins the transcript and its summary under Arabic headings.
func TranscriptContent(original, summary string) string {
	return "النص الأصلي:\n" + original + "\n\nالملخص:\n" + summary
}

// Exporter writes transcripts. FontPath points at a UTF-8 TTF font used for
// PDF output; the core fonts cannot draw Arabic, so PDF export is refused
// without one.
type Exporter struct {
	FontPath string
}

func (e Exporter) Export(original, summary string, format ExportFormat) (*Export, error) {
	if strings.TrimSpace(original) == "" && strings.TrimSpace(summary) == "" {
		return nil, ErrEmptyTranscript
	}
	content := TranscriptContent(original, summary)
	switch format {
	case FormatText, "":
		return &Export{
			FileName:    "transcription.txt",
			ContentType: "text/plain; charset=utf-8",
			Bytes:       []byte(content),
		}, nil
	case FormatPDF:
		if e.FontPath == "" {
			return nil, ErrFontRequired
		}
		data, err := e.textPDF(content)
		if err != nil {
			return nil, err
		}
		return &Export{FileName: "transcription.pdf", ContentType: "application/pdf", Bytes: data}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func (e Exporter) textPDF(content string) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(10, 10, 10)
	doc.SetAutoPageBreak(true, 10)

	if _, err := os.Stat(e.FontPath); err != nil {
		return nil, fmt.Errorf("pdf font: %w", err)
	}
	doc.AddUTF8Font("body", "", e.FontPath)
	doc.SetFont("body", "", 12)
	doc.AddPage()
	doc.MultiCell(0, 6, content, "", "L", false)
	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("build transcript pdf: %w", err)
	}

	var out bytes.Buffer
	if err := doc.Output(&out); err != nil {
		return nil, fmt.Errorf("write transcript pdf: %w", err)
	}
	return out.Bytes(), nil
}
