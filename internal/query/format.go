package query

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatValue renders a value for prose according to its column kind.
func FormatValue(c Column, v any) string {
	if v == nil {
		return "N/D"
	}

	d, ok := toDecimal(v)
	if !ok {
		return fmt.Sprint(v)
	}

	switch c.Kind {
	case KindCurrency:
		return "$" + groupThousands(d.StringFixed(2))
	case KindPercent:
		return d.StringFixed(2) + "%"
	case KindNumber:
		if d.IsInteger() {
			return groupThousands(d.String())
		}
		return groupThousands(d.StringFixed(2))
	default:
		return fmt.Sprint(v)
	}
}

// FormatRows renders at most limit rows as "column: value" lines.
func FormatRows(r *Result, limit int) string {
	var b strings.Builder
	for i, row := range r.Rows {
		if limit > 0 && i >= limit {
			fmt.Fprintf(&b, "... y %d resultados más.\n", r.RowCount-limit)
			break
		}
		fmt.Fprintf(&b, "Resultado %d:\n", i+1)
		for j, c := range r.Columns {
			fmt.Fprintf(&b, "- %s: %s\n", c.Name, FormatValue(c, row[j]))
		}
	}
	return b.String()
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case int64:
		return decimal.NewFromInt(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt32(x), true
	case float64:
		return decimal.NewFromFloat(x), true
	case float32:
		return decimal.NewFromFloat32(x), true
	case string:
		d, err := decimal.NewFromString(x)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if len(whole) <= 3 || strings.Trim(whole, "0123456789") != "" {
		return sign + s
	}

	var b strings.Builder
	lead := len(whole) % 3
	if lead > 0 {
		b.WriteString(whole[:lead])
	}
	for i := lead; i < len(whole); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(whole[i : i+3])
	}

	if hasFrac {
		return sign + b.String() + "." + frac
	}
	return sign + b.String()
}
