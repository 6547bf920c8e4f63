package chat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lever-lab/backend/internal/query"
	"github.com/lever-lab/backend/internal/storage/models"
)

const unavailableMessage = "Lo siento, el servicio de análisis no está disponible en este momento. Intenta de nuevo en unos minutos."

// Placeholders the model writes where a queried value belongs.
var placeholder = regexp.MustCompile(`\{\{\s*valor\s*\}\}|\[X\]|\bX\b`)

// Figures as the model writes them: "42", "1.234", "15,55".
var numberToken = regexp.MustCompile(`\d[\d.,]*`)

// substituteResult builds an answer from real rows without another model call.
// A draft stating any figure absent from the rows is dropped. A one by one
// result replaces the placeholders; anything else gets the row count and the
// first rows appended.
func substituteResult(draft string, res *query.Result) string {
	if hasUnverifiedFigure(draft, res) {
		draft = ""
	}

	if v, col, ok := res.Scalar(); ok {
		value := query.FormatValue(col, v)
		if placeholder.MatchString(draft) {
			return placeholder.ReplaceAllLiteralString(draft, value)
		}
		if draft == "" {
			return "Resultado: " + value
		}
		return fmt.Sprintf("%s\n\nResultado: %s", draft, value)
	}

	count := fmt.Sprint(res.RowCount)
	text := placeholder.ReplaceAllLiteralString(draft, count)

	var b strings.Builder
	if text != "" {
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "La consulta devolvió %d fila(s).\n", res.RowCount)
	b.WriteString(query.FormatRows(res, 10))
	return strings.TrimSpace(b.String())
}

// hasUnverifiedFigure reports whether draft contains a number that matches
// neither a returned value nor the row count. Numbers compare by their digits,
// so "1.234" matches 1234 and "15,55" matches 15.55.
func hasUnverifiedFigure(draft string, res *query.Result) bool {
	tokens := numberToken.FindAllString(draft, -1)
	if len(tokens) == 0 {
		return false
	}

	known := map[string]bool{digits(strconv.Itoa(res.RowCount)): true}
	for _, row := range res.Rows {
		for i, v := range row {
			if i < len(res.Columns) {
				known[digits(query.FormatValue(res.Columns[i], v))] = true
			}
			known[digits(plain(v))] = true
		}
	}

	for _, tok := range tokens {
		if !known[digits(tok)] {
			return true
		}
	}
	return false
}

func plain(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// noDataMessage explains an empty or failed query without a model call.
func noDataMessage(a *models.Availability) string {
	var b strings.Builder
	b.WriteString("No encontré datos para esa consulta.")

	if a != nil && a.PeriodCount > 0 {
		fmt.Fprintf(&b, " Hay información de %d periodos, entre %s y %s.", a.PeriodCount, a.FirstPeriod, a.LastPeriod)
	}
	if a != nil && len(a.Cities) > 0 {
		fmt.Fprintf(&b, " Ciudades disponibles: %s.", strings.Join(a.Cities, ", "))
	}
	b.WriteString(" Prueba ajustando el periodo, la ciudad o la palanca.")
	return b.String()
}
