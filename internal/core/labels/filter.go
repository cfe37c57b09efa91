package labels

import (
	"strings"

	"ipcam-analysis/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// Mode legt fest, wie die konfigurierte Label-Liste ausgewertet wird
type Mode int

const (
	// ModeNewLabels meldet alles außer den ignorierten Labels (und deren Unterlabels)
	ModeNewLabels Mode = iota
	// ModeAlarmLabels meldet nur Labels aus der Alarmliste
	ModeAlarmLabels
)

func (m Mode) String() string {
	if m == ModeAlarmLabels {
		return "alarm labels"
	}
	return "new labels"
}

// Policy reduziert die Erkennungen eines Bildes auf die meldenswerten Labels
type Policy struct {
	mode   Mode
	labels map[string]struct{}
}

// NewPolicy erstellt eine Policy. Die Liste ist je nach Modus Ignore- oder Alarmliste.
func NewPolicy(newLabelsOnly bool, labelList []string) *Policy {
	mode := ModeAlarmLabels
	if newLabelsOnly {
		mode = ModeNewLabels
	}

	set := make(map[string]struct{}, len(labelList))
	for _, l := range labelList {
		set[l] = struct{}{}
	}

	return &Policy{mode: mode, labels: set}
}

// Mode gibt den aktiven Modus zurück
func (p *Policy) Mode() Mode {
	return p.mode
}

// Filter wendet die Policy auf die Erkennungen an.
// Ein leeres Ergebnis ist gültig und bedeutet "nichts Interessantes erkannt".
func (p *Policy) Filter(detections []models.Detection) *models.LabelSet {
	result := models.NewLabelSet()

	for i := range detections {
		det := &detections[i]
		if det.Name == "" || det.Confidence <= 0 {
			log.Debugf("Dropped malformed label %q (confidence %.1f)", det.Name, det.Confidence)
			continue
		}

		var label models.FilteredLabel
		var ok bool
		if p.mode == ModeNewLabels {
			label, ok = p.filterNew(det)
		} else {
			label, ok = p.filterAlarm(det)
		}
		if ok {
			log.Debugf("Admitted label: %s", label.DisplayName)
			result.Put(label)
		}
	}

	return result
}

func (p *Policy) filterNew(det *models.Detection) (models.FilteredLabel, bool) {
	if p.contains(det.Name) {
		log.Infof("Ignored label: %s", det.Name)
		return models.FilteredLabel{}, false
	}

	for _, parent := range det.Parents {
		if p.contains(parent.Name) {
			log.Infof("Ignored label: %s (ignored parent: %s)", det.Name, parent.Name)
			return models.FilteredLabel{}, false
		}
	}

	name := det.Name
	if parents := FormatParents(det.Parents); parents != "" {
		name = name + " (" + parents + ")"
	}

	return models.FilteredLabel{DisplayName: name, Confidence: det.Confidence, Source: det}, true
}

func (p *Policy) filterAlarm(det *models.Detection) (models.FilteredLabel, bool) {
	if !p.contains(det.Name) {
		log.Infof("Ignored label: %s", det.Name)
		return models.FilteredLabel{}, false
	}
	return models.FilteredLabel{DisplayName: det.Name, Confidence: det.Confidence, Source: det}, true
}

func (p *Policy) contains(name string) bool {
	_, ok := p.labels[name]
	return ok
}

// FormatParents verbindet die Namen der Elternlabels mit ", " in Originalreihenfolge
func FormatParents(parents []models.Parent) string {
	var b strings.Builder
	for _, parent := range parents {
		b.WriteString(parent.Name)
		b.WriteString(", ")
	}
	return strings.TrimSuffix(b.String(), ", ")
}
