package rule

import (
	"errors"
	"fmt"
)

// ErrConfiguration 规则配置错误，注册时立即返回，不会延迟到验证时
var ErrConfiguration = errors.New("rule configuration error")

// ConfigurationError 规则配置错误详情
type ConfigurationError struct {
	// Rule 出错的规则名，可能为空
	Rule string
	// Column 相关列
	Column string
	// Reason 原因
	Reason string
}

// Error 实现 error 接口
func (e *ConfigurationError) Error() string {
	switch {
	case e.Rule != "" && e.Column != "":
		return fmt.Sprintf("%s: rule %q on column %q: %s", ErrConfiguration, e.Rule, e.Column, e.Reason)
	case e.Rule != "":
		return fmt.Sprintf("%s: rule %q: %s", ErrConfiguration, e.Rule, e.Reason)
	case e.Column != "":
		return fmt.Sprintf("%s: column %q: %s", ErrConfiguration, e.Column, e.Reason)
	default:
		return fmt.Sprintf("%s: %s", ErrConfiguration, e.Reason)
	}
}

// Unwrap 支持 errors.Is(err, ErrConfiguration)
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

func configErr(rule, column, format string, args ...any) error {
	return &ConfigurationError{Rule: rule, Column: column, Reason: fmt.Sprintf(format, args...)}
}
