package domain

import (
	"strconv"
	"strings"
)

// FingerprintDelimiter 指纹字段分隔符
const FingerprintDelimiter = "|"

// FingerprintVersion 指纹格式版本
type FingerprintVersion int

const (
	// FingerprintV1 基础格式：fileName|grams|time|machineType
	FingerprintV1 FingerprintVersion = 1
	// FingerprintV2 携带文件大小与时间戳的格式：fileName|fileSize|fileTimestamp|grams|time
	FingerprintV2 FingerprintVersion = 2
)

// FingerprintVersionOf 根据事件携带的字段选择指纹格式。
// fileSize 与 fileTimestamp 均存在且非零时使用 v2。
func FingerprintVersionOf(input *CreateInboxItemInput) FingerprintVersion {
	if input.FileSize != nil && *input.FileSize != 0 &&
		input.FileTimestamp != nil && *input.FileTimestamp != 0 {
		return FingerprintV2
	}
	return FingerprintV1
}

// Fingerprint 由切片事件计算稳定的身份字符串。
//
// 纯函数；缺少 fileName、grams、time 或 machineType 时返回 ErrInvalidEvent。
func Fingerprint(input *CreateInboxItemInput) (string, error) {
	if err := validateFingerprintFields(input); err != nil {
		return "", err
	}

	var parts []string
	switch FingerprintVersionOf(input) {
	case FingerprintV2:
		parts = []string{
			input.FileName,
			strconv.FormatInt(*input.FileSize, 10),
			strconv.FormatInt(*input.FileTimestamp, 10),
			formatNumber(*input.Grams),
			formatNumber(*input.Time),
		}
	default:
		parts = []string{
			input.FileName,
			formatNumber(*input.Grams),
			formatNumber(*input.Time),
			string(input.MachineType),
		}
	}
	return strings.Join(parts, FingerprintDelimiter), nil
}

// formatNumber 以最短形式输出数字（42 -> "42"，42.5 -> "42.5"）
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
