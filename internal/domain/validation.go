package domain

import (
	"fmt"
	"math"
	"strings"
)

const (
	maxFileNameLength = 255
	maxNameLength     = 255
)

// ValidateCreateInput 校验切片事件创建参数
func ValidateCreateInput(input *CreateInboxItemInput) error {
	if input == nil {
		return fmt.Errorf("%w: empty payload", ErrInvalidEvent)
	}
	if err := validateFingerprintFields(input); err != nil {
		return err
	}
	if len(input.Name) > maxNameLength {
		return fmt.Errorf("%w: name too long", ErrInvalidEvent)
	}
	if input.Source != "" && input.Source != SourceSlicerHook && input.Source != SourceManual {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidEvent, input.Source)
	}
	if input.TotalLayers != nil && *input.TotalLayers < 0 {
		return fmt.Errorf("%w: totalLayers must not be negative", ErrInvalidEvent)
	}
	if input.MulticolorChanges != nil && *input.MulticolorChanges < 0 {
		return fmt.Errorf("%w: multicolorChanges must not be negative", ErrInvalidEvent)
	}
	if input.FilamentLengthMeters != nil && !validMetric(*input.FilamentLengthMeters) {
		return fmt.Errorf("%w: filamentLengthMeters must be a non-negative number", ErrInvalidEvent)
	}
	if input.FileSize != nil && *input.FileSize < 0 {
		return fmt.Errorf("%w: fileSize must not be negative", ErrInvalidEvent)
	}
	return nil
}

// validateFingerprintFields 校验参与指纹计算的必填字段
func validateFingerprintFields(input *CreateInboxItemInput) error {
	if strings.TrimSpace(input.FileName) == "" {
		return fmt.Errorf("%w: fileName is required", ErrInvalidEvent)
	}
	if len(input.FileName) > maxFileNameLength {
		return fmt.Errorf("%w: fileName too long", ErrInvalidEvent)
	}
	if input.Grams == nil || !validMetric(*input.Grams) {
		return fmt.Errorf("%w: grams must be a non-negative number", ErrInvalidEvent)
	}
	if input.Time == nil || !validMetric(*input.Time) {
		return fmt.Errorf("%w: time must be a non-negative number", ErrInvalidEvent)
	}
	switch input.MachineType {
	case MachineTypeFDM, MachineTypeResin:
	case "":
		return fmt.Errorf("%w: machineType is required", ErrInvalidEvent)
	default:
		return fmt.Errorf("%w: unknown machineType %q", ErrInvalidEvent, input.MachineType)
	}
	return nil
}

func validMetric(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
