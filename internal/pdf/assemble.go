package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/go-pdf/fpdf"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Limits on one document. MaxPixels bounds the decoded raster of a single
// page, which is far larger than the compressed upload.
const (
	MaxImages = 50
	MaxPixels = 40_000_000
)

var (
	ErrNoImages      = errors.New("no images selected")
	ErrMissingName   = errors.New("pdf file name is required")
	ErrTooManyImages = errors.New("too many images")
	ErrImageTooLarge = errors.New("image dimensions too large")
)

// DecodeError reports which image stopped the conversion.
type DecodeError struct {
	Index int
	Name  string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type Image struct {
	Name string
	Data []byte
}

// Placement is where an image lands on its page, in page units.
type Placement struct {
	X, Y, W, H float64
}

// FitToPage scales an image by min(pageW/imgW, pageH/imgH) and centers it.
func FitToPage(imgW, imgH, pageW, pageH float64) Placement {
	if imgW <= 0 || imgH <= 0 {
		return Placement{}
	}
	ratio := min(pageW/imgW, pageH/imgH)
	w, h := imgW*ratio, imgH*ratio
	return Placement{X: (pageW - w) / 2, Y: (pageH - h) / 2, W: w, H: h}
}

type Document struct {
	FileName  string
	Bytes     []byte
	Pages     []Placement
	PageCount int
}

// FileName returns "{name}.pdf" for a user-entered name.
func FileName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, ".pdf")
	return name + ".pdf"
}

// Assemble puts every image on its own A4 page in the given order. Any image
// that fails to decode aborts the whole document. Headers are checked for
// every image before the first one is decoded, and only one decoded page is
// held at a time.
func Assemble(name string, images []Image) (*Document, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrMissingName
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	if len(images) > MaxImages {
		return nil, fmt.Errorf("%w: %d of at most %d", ErrTooManyImages, len(images), MaxImages)
	}
	for i, img := range images {
		if err := checkConfig(img); err != nil {
			return nil, &DecodeError{Index: i, Name: img.Name, Err: err}
		}
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetCreator("Medo.Ai", true)
	doc.SetTitle(strings.TrimSpace(name), true)

	opts := fpdf.ImageOptions{ImageType: "JPG"}
	pages := make([]Placement, 0, len(images))
	for i, img := range images {
		m, _, err := image.Decode(bytes.NewReader(img.Data))
		if err != nil {
			return nil, &DecodeError{Index: i, Name: img.Name, Err: err}
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, flatten(m), &jpeg.Options{Quality: 90}); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", i+1, err)
		}
		imgName := fmt.Sprintf("page-%d", i)
		doc.RegisterImageOptionsReader(imgName, opts, &buf)

		doc.AddPage()
		pageW, pageH := doc.GetPageSize()
		b := m.Bounds()
		p := FitToPage(float64(b.Dx()), float64(b.Dy()), pageW, pageH)
		doc.ImageOptions(imgName, p.X, p.Y, p.W, p.H, false, opts, 0, "")
		pages = append(pages, p)
	}
	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("build pdf: %w", err)
	}

	pageCount := doc.PageCount()
	var out bytes.Buffer
	if err := doc.Output(&out); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return &Document{FileName: FileName(name), Bytes: out.Bytes(), Pages: pages, PageCount: pageCount}, nil
}

func checkConfig(img Image) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("empty image %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return nil
}

// flatten draws the image over white so transparent areas stay white in JPEG.
func flatten(m image.Image) image.Image {
	b := m.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), m, b.Min, draw.Over)
	return dst
}
