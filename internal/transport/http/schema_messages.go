package httptransport

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// schemaMessageLanguage 校验明细使用的语言
var schemaMessageLanguage = language.SimplifiedChinese

// schemaMessages 上报 Schema 可能产生的校验信息（键为 jsonschema 的英文格式串）
var schemaMessages = map[string]string{
	"validation failed":          "校验失败",
	"got %s, want %s":            "类型错误：实际为 %s，应为 %s",
	"value must be %s":           "取值必须为 %s",
	"value must be one of %s":    "取值必须是以下之一：%s",
	"enum failed":                "取值不在允许范围内",
	"missing property %s":        "缺少字段 %s",
	"missing properties %s":      "缺少字段 %s",
	"minimum: got %v, want %v":   "数值过小：实际为 %v，至少为 %v",
	"minLength: got %d, want %d": "长度过短：实际为 %d，至少为 %d",
	"maxLength: got %d, want %d": "长度过长：实际为 %d，最多为 %d",
}

// newSchemaPrinter 创建输出中文校验明细的 Printer，未收录的信息保持英文原文
func newSchemaPrinter() (*message.Printer, error) {
	builder := catalog.NewBuilder(catalog.Fallback(schemaMessageLanguage))
	for key, msg := range schemaMessages {
		if err := builder.SetString(schemaMessageLanguage, key, msg); err != nil {
			return nil, err
		}
	}
	return message.NewPrinter(schemaMessageLanguage, message.Catalog(builder)), nil
}
