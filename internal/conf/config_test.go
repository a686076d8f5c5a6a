package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validSettings returns a Settings struct that passes validation, for tests to
// mutate one field at a time.
func validSettings() *Settings {
	s := &Settings{}
	s.Identification = IdentificationConfig{
		DetectorConfidenceFloor: 0.5,
		TopK:                    5,
		MinSimilarity:           0.35,
		HighConfidence:          0.82,
		SeparationMargin:        0.12,
	}
	s.Oracle = OracleConfig{
		Endpoint:       "http://localhost:8000",
		Model:          "test-model",
		Timeout:        30 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
	}
	s.Training = TrainingConfig{
		MinSamples:      50,
		RetrainInterval: 24 * time.Hour,
		SampleDelta:     500,
		HoldoutFraction: 0.2,
		WindowDays:      7,
		Epochs:          200,
		LearningRate:    0.1,
	}
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = "detections.db"
	return s
}

func TestValidateSettingsAcceptsDefaults(t *testing.T) {
	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateIdentification(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"negative floor", func(s *Settings) { s.Identification.DetectorConfidenceFloor = -0.1 }},
		{"floor above one", func(s *Settings) { s.Identification.DetectorConfidenceFloor = 1.1 }},
		{"zero topk", func(s *Settings) { s.Identification.TopK = 0 }},
		{"high confidence below min similarity", func(s *Settings) { s.Identification.HighConfidence = 0.1 }},
		{"margin above one", func(s *Settings) { s.Identification.SeparationMargin = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			assert.Error(t, ValidateSettings(s))
		})
	}
}

func TestValidateOracle(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"empty endpoint", func(s *Settings) { s.Oracle.Endpoint = "" }},
		{"empty model", func(s *Settings) { s.Oracle.Model = "" }},
		{"zero timeout", func(s *Settings) { s.Oracle.Timeout = 0 }},
		{"zero attempts", func(s *Settings) { s.Oracle.MaxAttempts = 0 }},
		{"negative backoff", func(s *Settings) { s.Oracle.InitialBackoff = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			assert.Error(t, ValidateSettings(s))
		})
	}
}

func TestValidateTraining(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero min samples", func(s *Settings) { s.Training.MinSamples = 0 }},
		{"zero interval", func(s *Settings) { s.Training.RetrainInterval = 0 }},
		{"zero delta", func(s *Settings) { s.Training.SampleDelta = 0 }},
		{"holdout zero", func(s *Settings) { s.Training.HoldoutFraction = 0 }},
		{"holdout one", func(s *Settings) { s.Training.HoldoutFraction = 1 }},
		{"zero epochs", func(s *Settings) { s.Training.Epochs = 0 }},
		{"zero learning rate", func(s *Settings) { s.Training.LearningRate = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			assert.Error(t, ValidateSettings(s))
		})
	}
}

func TestValidateOutputRequiresOneStore(t *testing.T) {
	s := validSettings()
	s.Output.SQLite.Enabled = false
	s.Output.MySQL.Enabled = false
	assert.Error(t, ValidateSettings(s))

	s.Output.MySQL.Enabled = true
	assert.NoError(t, ValidateSettings(s))
}
