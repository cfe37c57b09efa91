package models

import (
	"image"
	"time"
)

// Parent ist eine übergeordnete Kategorie eines Labels (z.B. "Vehicle" für "Car")
type Parent struct {
	Name string `json:"Name"`
}

// BoundingBox enthält die Position einer Instanz als Anteile der Bildgröße (0-1)
type BoundingBox struct {
	Width  float64 `json:"Width"`
	Height float64 `json:"Height"`
	Left   float64 `json:"Left"`
	Top    float64 `json:"Top"`
}

// Instance ist ein einzelnes Vorkommen eines Labels im Bild
type Instance struct {
	BoundingBox BoundingBox `json:"BoundingBox"`
	Confidence  float64     `json:"Confidence"` // 0-100, 0 wenn der Dienst keinen Wert liefert
}

// Detection ist ein vom Erkennungsdienst gemeldetes Label
type Detection struct {
	Name       string     `json:"Name"`
	Confidence float64    `json:"Confidence"` // 0-100
	Parents    []Parent   `json:"Parents"`
	Instances  []Instance `json:"Instances"`
}

// FilteredLabel ist ein für die Benachrichtigung zugelassenes Label
type FilteredLabel struct {
	DisplayName string
	Confidence  float64
	Source      *Detection // zugrundeliegende Erkennung, für die Annotation
}

// LabelSet ist eine geordnete Zuordnung Anzeigename -> Label.
// Die Reihenfolge entspricht der ersten Einfügung; doppelte Namen überschreiben
// den vorherigen Eintrag an dessen Position.
type LabelSet struct {
	order  []string
	labels map[string]FilteredLabel
}

// NewLabelSet erstellt ein leeres LabelSet
func NewLabelSet() *LabelSet {
	return &LabelSet{labels: make(map[string]FilteredLabel)}
}

// Put fügt ein Label hinzu oder ersetzt ein vorhandenes mit gleichem Anzeigenamen
func (s *LabelSet) Put(label FilteredLabel) {
	if _, exists := s.labels[label.DisplayName]; !exists {
		s.order = append(s.order, label.DisplayName)
	}
	s.labels[label.DisplayName] = label
}

// Len gibt die Anzahl der Labels zurück
func (s *LabelSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Get gibt das Label mit dem angegebenen Anzeigenamen zurück
func (s *LabelSet) Get(displayName string) (FilteredLabel, bool) {
	if s == nil {
		return FilteredLabel{}, false
	}
	label, ok := s.labels[displayName]
	return label, ok
}

// Labels gibt alle Labels in Einfügereihenfolge zurück
func (s *LabelSet) Labels() []FilteredLabel {
	if s == nil {
		return nil
	}
	result := make([]FilteredLabel, 0, len(s.order))
	for _, name := range s.order {
		result = append(result, s.labels[name])
	}
	return result
}

// Confidences gibt die Zuordnung Anzeigename -> Konfidenz zurück
func (s *LabelSet) Confidences() map[string]float64 {
	result := make(map[string]float64, s.Len())
	for _, label := range s.Labels() {
		result[label.DisplayName] = label.Confidence
	}
	return result
}

// PipelineRun enthält den Kontext einer einzelnen Bildverarbeitung.
// Wird beim Eintritt erstellt und nach der Verarbeitung verworfen.
type PipelineRun struct {
	ImagePath  string
	Camera     string
	Timestamp  time.Time
	ImageData  []byte
	Format     string // "jpeg" oder "png"
	Image      image.Image
	Detections []Detection
	Labels     *LabelSet

	Annotated       []byte // JPEG-kodiertes, annotiertes Bild
	AnnotatedWidth  int
	AnnotatedHeight int
}
