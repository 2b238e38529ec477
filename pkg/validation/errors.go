package validation

import (
	"errors"
	"fmt"
)

var (
	// ErrPredicateFailure 规则谓词在执行时 panic
	ErrPredicateFailure = errors.New("rule predicate failure")

	// ErrValidationInProgress 同一引擎已有批量验证在运行
	ErrValidationInProgress = errors.New("validation already in progress")

	// ErrUnknownScope 未知的验证范围
	ErrUnknownScope = errors.New("unknown validation scope")
)

// PredicateFailure 谓词 panic 的详情
type PredicateFailure struct {
	// Rule 规则名
	Rule string
	// Cause recover 得到的值
	Cause any
	// Input 谓词输入的文本快照
	Input string
}

func (e *PredicateFailure) Error() string {
	return fmt.Sprintf("rule %q predicate failed: %v", e.Rule, e.Cause)
}

func (e *PredicateFailure) Unwrap() error {
	return ErrPredicateFailure
}

// callCheck 执行谓词并把 panic 转换为 *PredicateFailure
func callCheck(name string, input func() string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PredicateFailure{Rule: name, Cause: r, Input: input()}
		}
	}()
	return fn()
}
