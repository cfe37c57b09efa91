package labels

import (
	"testing"

	"ipcam-analysis/internal/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parents(names ...string) []models.Parent {
	result := make([]models.Parent, 0, len(names))
	for _, n := range names {
		result = append(result, models.Parent{Name: n})
	}
	return result
}

func TestNewLabelsModeIgnoresParent(t *testing.T) {
	policy := NewPolicy(true, []string{"Vegetation"})
	detections := []models.Detection{
		{Name: "Tree", Confidence: 97.2, Parents: parents("Vegetation")},
		{Name: "Person", Confidence: 88.5},
	}

	result := policy.Filter(detections)

	assert.Equal(t, map[string]float64{"Person": 88.5}, result.Confidences())
}

func TestNewLabelsModeIgnoresName(t *testing.T) {
	policy := NewPolicy(true, []string{"Car"})
	result := policy.Filter([]models.Detection{
		{Name: "Car", Confidence: 90},
		{Name: "Dog", Confidence: 80},
	})

	require.Equal(t, 1, result.Len())
	_, ok := result.Get("Dog")
	assert.True(t, ok)
}

func TestNewLabelsModeFirstIgnoredParentWins(t *testing.T) {
	policy := NewPolicy(true, []string{"Vehicle", "Transportation"})
	result := policy.Filter([]models.Detection{
		{Name: "Car", Confidence: 90, Parents: parents("Machine", "Vehicle", "Transportation")},
	})
	assert.Equal(t, 0, result.Len())
}

func TestNewLabelsModeDisplayNameWithParents(t *testing.T) {
	policy := NewPolicy(true, nil)
	result := policy.Filter([]models.Detection{
		{Name: "Car", Confidence: 91.25, Parents: parents("Vehicle", "Transportation")},
		{Name: "Person", Confidence: 70},
	})

	labels := result.Labels()
	require.Len(t, labels, 2)
	assert.Equal(t, "Car (Vehicle, Transportation)", labels[0].DisplayName)
	assert.Equal(t, 91.25, labels[0].Confidence)
	assert.Equal(t, "Person", labels[1].DisplayName)
	require.NotNil(t, labels[0].Source)
	assert.Equal(t, "Car", labels[0].Source.Name)
}

func TestAlarmLabelsMode(t *testing.T) {
	policy := NewPolicy(false, []string{"Person"})
	assert.Equal(t, ModeAlarmLabels, policy.Mode())

	result := policy.Filter([]models.Detection{
		{Name: "Person", Confidence: 99, Parents: parents("Human")},
		{Name: "Car", Confidence: 95},
	})

	assert.Equal(t, map[string]float64{"Person": 99}, result.Confidences())
}

func TestDuplicateDisplayNamesLastWins(t *testing.T) {
	policy := NewPolicy(true, nil)
	result := policy.Filter([]models.Detection{
		{Name: "Person", Confidence: 95},
		{Name: "Dog", Confidence: 60},
		{Name: "Person", Confidence: 51},
	})

	labels := result.Labels()
	require.Len(t, labels, 2)
	assert.Equal(t, "Person", labels[0].DisplayName)
	assert.Equal(t, 51.0, labels[0].Confidence)
	assert.Equal(t, "Dog", labels[1].DisplayName)
}

func TestMalformedDetectionsNeverAdmitted(t *testing.T) {
	policy := NewPolicy(true, nil)
	result := policy.Filter([]models.Detection{
		{Name: "", Confidence: 80},
		{Name: "Ghost", Confidence: 0},
	})
	assert.Equal(t, 0, result.Len())
}

func TestFormatParents(t *testing.T) {
	assert.Equal(t, "", FormatParents(nil))
	assert.Equal(t, "Animal", FormatParents(parents("Animal")))
	assert.Equal(t, "Pet, Animal, Mammal", FormatParents(parents("Pet", "Animal", "Mammal")))
}
