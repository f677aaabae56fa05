package ai

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

var ErrInvalidDataURI = errors.New("invalid data uri")

// Media is a file passed inline with a request.
type Media struct {
	MIMEType string
	Data     []byte
	Name     string
}

// DataURI renders the media as data:<mime>;base64,<payload>.
func (m Media) DataURI() string {
	return "data:" + m.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(m.Data)
}

// ParseDataURI decodes a base64 data URI.
func ParseDataURI(uri string) (Media, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return Media{}, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Media{}, fmt.Errorf("%w: missing payload", ErrInvalidDataURI)
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return Media{}, fmt.Errorf("%w: payload must be base64", ErrInvalidDataURI)
	}
	if mimeType == "" || !strings.Contains(mimeType, "/") {
		return Media{}, fmt.Errorf("%w: missing mime type", ErrInvalidDataURI)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Media{}, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return Media{MIMEType: strings.ToLower(mimeType), Data: data}, nil
}

func (m Media) part() schema.ChatMessagePart {
	uri := m.DataURI()
	switch {
	case strings.HasPrefix(m.MIMEType, "image/"):
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: uri, MIMEType: m.MIMEType},
		}
	case strings.HasPrefix(m.MIMEType, "audio/"):
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeAudioURL,
			AudioURL: &schema.ChatMessageAudioURL{URL: uri, MIMEType: m.MIMEType},
		}
	default:
		return schema.ChatMessagePart{
			Type:    schema.ChatMessagePartTypeFileURL,
			FileURL: &schema.ChatMessageFileURL{URL: uri, MIMEType: m.MIMEType, Name: m.Name},
		}
	}
}
