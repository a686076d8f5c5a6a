// conf/validate.go settings validation performed at load time
package conf

import (
	"errors"
	"fmt"
)

// ValidateSettings checks that every recognized option carries a usable value.
// Validation failures are configuration errors and abort startup.
func ValidateSettings(s *Settings) error {
	var errs []error

	if err := validateIdentification(&s.Identification); err != nil {
		errs = append(errs, err)
	}
	if err := validateOracle(&s.Oracle); err != nil {
		errs = append(errs, err)
	}
	if err := validateTraining(&s.Training); err != nil {
		errs = append(errs, err)
	}
	if err := validateOutput(s); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateIdentification(c *IdentificationConfig) error {
	if c.DetectorConfidenceFloor < 0 || c.DetectorConfidenceFloor > 1 {
		return fmt.Errorf("identification.detectorconfidencefloor must be within [0,1], got %v", c.DetectorConfidenceFloor)
	}
	if c.TopK < 1 {
		return fmt.Errorf("identification.topk must be at least 1, got %d", c.TopK)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("identification.minsimilarity must be within [0,1], got %v", c.MinSimilarity)
	}
	if c.HighConfidence < c.MinSimilarity || c.HighConfidence > 1 {
		return fmt.Errorf("identification.highconfidence must be within [minsimilarity,1], got %v", c.HighConfidence)
	}
	if c.SeparationMargin < 0 || c.SeparationMargin > 1 {
		return fmt.Errorf("identification.separationmargin must be within [0,1], got %v", c.SeparationMargin)
	}
	return nil
}

func validateOracle(c *OracleConfig) error {
	if c.Endpoint == "" {
		return fmt.Errorf("oracle.endpoint must not be empty")
	}
	if c.Model == "" {
		return fmt.Errorf("oracle.model must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("oracle.timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("oracle.maxattempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.InitialBackoff < 0 {
		return fmt.Errorf("oracle.initialbackoff must not be negative, got %v", c.InitialBackoff)
	}
	return nil
}

func validateTraining(c *TrainingConfig) error {
	if c.MinSamples < 1 {
		return fmt.Errorf("training.minsamples must be at least 1, got %d", c.MinSamples)
	}
	if c.RetrainInterval <= 0 {
		return fmt.Errorf("training.retraininterval must be positive, got %v", c.RetrainInterval)
	}
	if c.SampleDelta < 1 {
		return fmt.Errorf("training.sampledelta must be at least 1, got %d", c.SampleDelta)
	}
	if c.HoldoutFraction <= 0 || c.HoldoutFraction >= 1 {
		return fmt.Errorf("training.holdoutfraction must be within (0,1), got %v", c.HoldoutFraction)
	}
	if c.WindowDays < 1 {
		return fmt.Errorf("training.windowdays must be at least 1, got %d", c.WindowDays)
	}
	if c.Epochs < 1 {
		return fmt.Errorf("training.epochs must be at least 1, got %d", c.Epochs)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("training.learningrate must be positive, got %v", c.LearningRate)
	}
	return nil
}

func validateOutput(s *Settings) error {
	if !s.Output.SQLite.Enabled && !s.Output.MySQL.Enabled {
		return fmt.Errorf("at least one of output.sqlite or output.mysql must be enabled")
	}
	if s.Output.SQLite.Enabled && s.Output.SQLite.Path == "" {
		return fmt.Errorf("output.sqlite.path must not be empty")
	}
	return nil
}
