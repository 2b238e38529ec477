package rule

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"katydid-common-validation/pkg/table"
)

// ErrTypeMismatch 值的类型与规则要求不符
var ErrTypeMismatch = errors.New("type mismatch")

var (
	// tagValidate go-playground 验证器，并发安全，全局复用
	tagValidate     *validator.Validate
	tagValidateOnce sync.Once
)

func tagValidator() *validator.Validate {
	tagValidateOnce.Do(func() {
		tagValidate = validator.New()
	})
	return tagValidate
}

// Cell 自定义单列规则
func Cell(name, column string, check CellCheck) Rule {
	return Rule{Name: name, Columns: []string{column}, Severity: Error, Check: check}
}

// Row 自定义跨列规则，注册在 owner 列上，others 为依赖的其他列
func Row(name, owner string, others []string, check RowCheck) Rule {
	columns := append([]string{owner}, others...)
	return Rule{Name: name, Columns: columns, Severity: Error, Check: check}
}

// Rows 自定义跨行规则
func Rows(name string, columns []string, check RowsCheck) Rule {
	return Rule{Name: name, Columns: columns, Severity: Error, Check: check}
}

// Dataset 自定义全数据集规则
func Dataset(name string, columns []string, check DatasetCheck) Rule {
	return Rule{Name: name, Columns: columns, Severity: Error, Check: check}
}

// Required 值不能为空
func Required(name, column string) Rule {
	return Cell(name, column, func(v table.Value) error {
		if v.IsEmpty() {
			return errors.New("value is required")
		}
		return nil
	})
}

// Range 数值范围 [min, max]，非数值输入视为类型违规，空值通过
func Range(name, column string, min, max float64) Rule {
	return Cell(name, column, func(v table.Value) error {
		if v.IsEmpty() {
			return nil
		}
		f, ok := v.Float64()
		if !ok {
			return fmt.Errorf("%w: %q is not a number", ErrTypeMismatch, v.String())
		}
		if f < min || f > max {
			return fmt.Errorf("%s is out of range [%s, %s]", formatFloat(f), formatFloat(min), formatFloat(max))
		}
		return nil
	})
}

// Length 字符长度范围 [min, max]，max<0 表示不限，空值通过
func Length(name, column string, min, max int) Rule {
	return Cell(name, column, func(v table.Value) error {
		if v.IsEmpty() {
			return nil
		}
		n := utf8.RuneCountInString(v.String())
		if n < min || (max >= 0 && n > max) {
			return fmt.Errorf("length %d is out of range [%d, %d]", n, min, max)
		}
		return nil
	})
}

// Pattern 正则匹配，空值通过
func Pattern(name, column string, re *regexp.Regexp) Rule {
	return Cell(name, column, func(v table.Value) error {
		if v.IsEmpty() {
			return nil
		}
		if !re.MatchString(v.String()) {
			return fmt.Errorf("%q does not match %s", v.String(), re.String())
		}
		return nil
	})
}

// OneOf 值必须是给定选项之一，空值通过
func OneOf(name, column string, allowed ...string) Rule {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return Cell(name, column, func(v table.Value) error {
		if v.IsEmpty() {
			return nil
		}
		if _, ok := set[v.String()]; !ok {
			return fmt.Errorf("%q is not one of [%s]", v.String(), strings.Join(allowed, ", "))
		}
		return nil
	})
}

// Tag 使用 go-playground/validator 标签语法的单列规则，如 "email"、"gte=0,lte=150"
// 空值只有在标签列表中有 required 这一项时才会失败，required_with 等条件标签不算
func Tag(name, column, tag string) Rule {
	required := hasTag(tag, "required")
	return Cell(name, column, func(v table.Value) error {
		if v.IsEmpty() {
			if required {
				return errors.New("value is required")
			}
			return nil
		}
		if err := tagValidator().Var(v.Raw, tag); err != nil {
			return tagError(err)
		}
		return nil
	})
}

// hasTag 逗号分隔的标签列表中是否有 want 这一项
func hasTag(tag, want string) bool {
	for _, t := range strings.Split(tag, ",") {
		if strings.TrimSpace(t) == want {
			return true
		}
	}
	return false
}

func tagError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	fe := errs[0]
	if fe.Param() != "" {
		return fmt.Errorf("failed on %q (%s)", fe.Tag(), fe.Param())
	}
	return fmt.Errorf("failed on %q", fe.Tag())
}

// Op 比较运算符
type Op string

const (
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
	OpEQ Op = "=="
	OpNE Op = "!="
)

// Compare 跨列比较：left op right，注册在 left 列上；任一侧为空时通过
// 两侧都是数值时按数值比较，都是时间时按时间比较，否则按字符串比较
func Compare(name, left string, op Op, right string) Rule {
	return Row(name, left, []string{right}, func(row table.RowView) error {
		a, b := row.Get(left), row.Get(right)
		if a.IsEmpty() || b.IsEmpty() {
			return nil
		}
		c, err := compareValues(a, b)
		if err != nil {
			return err
		}
		if !op.holds(c) {
			return fmt.Errorf("%s %s %s does not hold (%s vs %s)", left, op, right, a.String(), b.String())
		}
		return nil
	})
}

func (op Op) holds(c int) bool {
	switch op {
	case OpLT:
		return c < 0
	case OpLE:
		return c <= 0
	case OpGT:
		return c > 0
	case OpGE:
		return c >= 0
	case OpEQ:
		return c == 0
	case OpNE:
		return c != 0
	default:
		return false
	}
}

func compareValues(a, b table.Value) (int, error) {
	if fa, ok := a.Float64(); ok {
		if fb, ok := b.Float64(); ok {
			return compareOrdered(fa, fb), nil
		}
		return 0, fmt.Errorf("%w: cannot compare number with %q", ErrTypeMismatch, b.String())
	}
	if ta, ok := a.Raw.(time.Time); ok {
		if tb, ok := b.Raw.(time.Time); ok {
			return ta.Compare(tb), nil
		}
		return 0, fmt.Errorf("%w: cannot compare time with %q", ErrTypeMismatch, b.String())
	}
	return strings.Compare(a.String(), b.String()), nil
}

func compareOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// RequiredIf 当 other 列的值等于 equals 时，column 不能为空；注册在 column 上
func RequiredIf(name, column, other string, equals any) Rule {
	want := table.NewValue(equals, table.TypeUnknown)
	return Row(name, column, []string{other}, func(row table.RowView) error {
		if !row.Get(other).Equal(want) {
			return nil
		}
		if row.Get(column).IsEmpty() {
			return fmt.Errorf("value is required when %s is %s", other, want.String())
		}
		return nil
	})
}

// SumEquals 跨行规则：范围内 sumColumn 之和等于范围内最后一行的 totalColumn
// 空值不参与求和；非数值单元格各自产生一条违规
func SumEquals(name, sumColumn, totalColumn string) Rule {
	return Rows(name, []string{sumColumn, totalColumn}, func(rows []table.RowView) []Finding {
		if len(rows) == 0 {
			return nil
		}
		var (
			findings []Finding
			sum      float64
		)
		for _, row := range rows {
			v := row.Get(sumColumn)
			if v.IsEmpty() {
				continue
			}
			f, ok := v.Float64()
			if !ok {
				findings = append(findings, Finding{
					Cells:  []table.CellRef{{Row: row.Index, Column: sumColumn}},
					Detail: fmt.Sprintf("%v: %q is not a number", ErrTypeMismatch, v.String()),
				})
				continue
			}
			sum += f
		}

		last := rows[len(rows)-1]
		totalCell := table.CellRef{Row: last.Index, Column: totalColumn}
		total, ok := last.Get(totalColumn).Float64()
		switch {
		case !ok:
			findings = append(findings, Finding{
				Cells:  []table.CellRef{totalCell},
				Detail: fmt.Sprintf("total %q is not a number", last.Get(totalColumn).String()),
			})
		case math.Abs(sum-total) > 1e-9*math.Max(1, math.Abs(total)):
			findings = append(findings, Finding{
				Cells:  []table.CellRef{totalCell},
				Detail: fmt.Sprintf("sum of %s is %s, total is %s", sumColumn, formatFloat(sum), formatFloat(total)),
			})
		}
		return findings
	})
}

// Unique 全数据集规则：columns 组合的值在整个数据集内唯一
// 组合值全为空的行不参与比较；每个重复行的相关单元格都收到违规，Related 为其他重复行
func Unique(name string, columns ...string) Rule {
	return Dataset(name, columns, func(rows []table.RowView) []Finding {
		groups := make(map[string][]int)
		var order []string
		for _, row := range rows {
			key, empty := uniqueKey(row, columns)
			if empty {
				continue
			}
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], row.Index)
		}

		var findings []Finding
		for _, key := range order {
			indices := groups[key]
			if len(indices) < 2 {
				continue
			}
			for _, idx := range indices {
				related := make([]int, 0, len(indices)-1)
				for _, other := range indices {
					if other != idx {
						related = append(related, other)
					}
				}
				cells := make([]table.CellRef, len(columns))
				for i, c := range columns {
					cells[i] = table.CellRef{Row: idx, Column: c}
				}
				findings = append(findings, Finding{
					Cells:   cells,
					Detail:  fmt.Sprintf("duplicate of row %s", joinInts(related)),
					Related: related,
				})
			}
		}
		return findings
	})
}

func uniqueKey(row table.RowView, columns []string) (string, bool) {
	var builder strings.Builder
	empty := true
	for i, c := range columns {
		if i > 0 {
			builder.WriteByte(0x1f)
		}
		v := row.Get(c)
		if !v.IsEmpty() {
			empty = false
		}
		builder.WriteString(v.String())
	}
	return builder.String(), empty
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
