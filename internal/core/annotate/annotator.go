package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"ipcam-analysis/internal/core/models"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Yellow ist die Farbe für Rahmen und Beschriftung
var Yellow = color.RGBA{R: 255, G: 255, B: 0, A: 255}

const (
	defaultFontSize = 12
	jpegQuality     = 90
)

// Box ist eine einzuzeichnende Instanz
type Box struct {
	Name        string
	BoundingBox models.BoundingBox
	Confidence  float64
}

// Rect ist ein Rechteck in Pixelkoordinaten des verkleinerten Bildes
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Annotator zeichnet Erkennungen auf eine verkleinerte Kopie des Bildes
type Annotator struct {
	resizePercent float64
	face          font.Face
}

// New erstellt einen Annotator. resizePercent bezieht sich auf die Originalgröße.
func New(resizePercent float64) (*Annotator, error) {
	if resizePercent <= 0 {
		return nil, fmt.Errorf("resize percent must be positive, got %.1f", resizePercent)
	}

	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	return &Annotator{
		resizePercent: resizePercent,
		face:          truetype.NewFace(f, &truetype.Options{Size: defaultFontSize}),
	}, nil
}

// BoxesFor sammelt alle Instanzen der zugelassenen Labels
func BoxesFor(labels *models.LabelSet) []Box {
	var boxes []Box
	for _, label := range labels.Labels() {
		if label.Source == nil || len(label.Source.Instances) == 0 {
			log.Debugf("No bounding boxes for label %s", label.DisplayName)
			continue
		}
		for _, inst := range label.Source.Instances {
			conf := inst.Confidence
			if conf <= 0 {
				conf = label.Confidence
			}
			boxes = append(boxes, Box{
				Name:        label.Source.Name,
				BoundingBox: inst.BoundingBox,
				Confidence:  conf,
			})
		}
	}
	return boxes
}

// ResizedSize berechnet die Zielgröße, mindestens 1x1 Pixel
func ResizedSize(width, height int, percent float64) (int, int) {
	w := int(math.Round(float64(width) * percent / 100))
	h := int(math.Round(float64(height) * percent / 100))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// BoxRect rechnet eine relative Box in Pixel des w x h Bildes um
func BoxRect(b models.BoundingBox, w, h int) Rect {
	x0 := float64(w) * b.Left
	y0 := float64(h) * b.Top
	return Rect{
		X0: x0,
		Y0: y0,
		X1: x0 + float64(w)*b.Width,
		Y1: y0 + float64(h)*b.Height,
	}
}

// TextOrigin liefert die linke obere Ecke der Beschriftung.
// Unter der Box, wenn der Text noch ins Bild passt, sonst darüber.
func TextOrigin(r Rect, textHeight float64, frameHeight int) (x, y float64, below bool) {
	if r.Y1+textHeight <= float64(frameHeight) {
		return r.X0, r.Y1, true
	}
	return r.X0, r.Y0 - textHeight, false
}

// Caption formatiert die Beschriftung, z.B. "Person 98%"
func Caption(name string, confidence float64) string {
	return fmt.Sprintf("%s %d%%", name, int(math.Round(confidence)))
}

// Annotate verkleinert eine Kopie von src und zeichnet alle Boxen ein.
// src wird nicht verändert.
func (a *Annotator) Annotate(src image.Image, boxes []Box) image.Image {
	bounds := src.Bounds()
	w, h := ResizedSize(bounds.Dx(), bounds.Dy(), a.resizePercent)

	resized := imaging.Resize(src, w, h, imaging.Lanczos)
	if len(boxes) == 0 {
		log.Info("No bounding boxes")
		return resized
	}

	dc := gg.NewContextForImage(resized)
	dc.SetFontFace(a.face)
	dc.SetColor(Yellow)
	dc.SetLineWidth(1)

	for _, box := range boxes {
		r := BoxRect(box.BoundingBox, w, h)
		dc.DrawRectangle(r.X0, r.Y0, r.X1-r.X0, r.Y1-r.Y0)
		dc.Stroke()

		text := Caption(box.Name, box.Confidence)
		_, th := dc.MeasureString(text)
		x, y, below := TextOrigin(r, th, h)
		if below {
			log.Debugf("Drawing bounding box on bottom (%.0f,%.0f)-(%.0f,%.0f) %s", r.X0, r.Y0, r.X1, r.Y1, text)
		} else {
			log.Debugf("Drawing bounding box on top (%.0f,%.0f)-(%.0f,%.0f) %s", r.X0, r.Y0, r.X1, r.Y1, text)
		}
		dc.DrawStringAnchored(text, x, y, 0, 1)
	}

	return dc.Image()
}

// EncodeJPEG kodiert das annotierte Bild für den Mailanhang
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode annotated image: %w", err)
	}
	return buf.Bytes(), nil
}
