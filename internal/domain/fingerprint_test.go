package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func bracketInput() *CreateInboxItemInput {
	return &CreateInboxItemInput{
		Name:          "bracket",
		FileName:      "bracket.stl",
		Grams:         f64(42),
		Time:          f64(65),
		MachineType:   MachineTypeFDM,
		FileSize:      i64(184320),
		FileTimestamp: i64(1690000000),
	}
}

func TestFingerprint(t *testing.T) {
	t.Run("携带文件大小与时间戳时使用v2", func(t *testing.T) {
		input := bracketInput()

		fp, err := Fingerprint(input)

		require.NoError(t, err)
		assert.Equal(t, FingerprintV2, FingerprintVersionOf(input))
		assert.Equal(t, "bracket.stl|184320|1690000000|42|65", fp)
	})

	t.Run("缺少任一字段时回退v1", func(t *testing.T) {
		noSize := bracketInput()
		noSize.FileSize = nil
		noStamp := bracketInput()
		noStamp.FileTimestamp = nil

		for _, input := range []*CreateInboxItemInput{noSize, noStamp} {
			fp, err := Fingerprint(input)
			require.NoError(t, err)
			assert.Equal(t, FingerprintV1, FingerprintVersionOf(input))
			assert.Equal(t, "bracket.stl|42|65|FDM", fp)
		}
	})

	t.Run("零值视为缺省", func(t *testing.T) {
		input := bracketInput()
		input.FileSize = i64(0)

		assert.Equal(t, FingerprintV1, FingerprintVersionOf(input))
	})

	t.Run("小数按最短形式输出", func(t *testing.T) {
		input := bracketInput()
		input.FileSize = nil
		input.Grams = f64(12.5)
		input.Time = f64(90.25)
		input.MachineType = MachineTypeResin

		fp, err := Fingerprint(input)

		require.NoError(t, err)
		assert.Equal(t, "bracket.stl|12.5|90.25|RESIN", fp)
	})

	t.Run("相同输入得到相同指纹", func(t *testing.T) {
		a, err := Fingerprint(bracketInput())
		require.NoError(t, err)
		b, err := Fingerprint(bracketInput())
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})

	t.Run("修改任一v2字段都会改变指纹", func(t *testing.T) {
		base, err := Fingerprint(bracketInput())
		require.NoError(t, err)

		mutations := map[string]func(*CreateInboxItemInput){
			"fileName":      func(in *CreateInboxItemInput) { in.FileName = "bracket-v2.stl" },
			"fileSize":      func(in *CreateInboxItemInput) { in.FileSize = i64(184321) },
			"fileTimestamp": func(in *CreateInboxItemInput) { in.FileTimestamp = i64(1690000001) },
			"grams":         func(in *CreateInboxItemInput) { in.Grams = f64(43) },
			"time":          func(in *CreateInboxItemInput) { in.Time = f64(66) },
		}

		for field, mutate := range mutations {
			input := bracketInput()
			mutate(input)
			fp, err := Fingerprint(input)
			require.NoError(t, err, field)
			assert.NotEqual(t, base, fp, field)
		}
	})

	t.Run("缺少必填字段返回InvalidEvent", func(t *testing.T) {
		cases := map[string]func(*CreateInboxItemInput){
			"fileName":    func(in *CreateInboxItemInput) { in.FileName = "" },
			"grams":       func(in *CreateInboxItemInput) { in.Grams = nil },
			"time":        func(in *CreateInboxItemInput) { in.Time = nil },
			"machineType": func(in *CreateInboxItemInput) { in.MachineType = "" },
		}

		for field, mutate := range cases {
			input := bracketInput()
			mutate(input)
			_, err := Fingerprint(input)
			assert.True(t, errors.Is(err, ErrInvalidEvent), field)
		}
	})
}
