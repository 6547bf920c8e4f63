package chat

import (
	"fmt"
	"strings"

	"github.com/lever-lab/backend/internal/query"
	"github.com/lever-lab/backend/internal/storage/models"
)

const preamble = `Eres un analista de datos de retail especializado en experimentos A/B en puntos de venta (PDV).
Cada PDV pertenece a una tipología y tiene asignada una palanca; la palanca "Control" es el grupo base.

Reglas:
1. Si la pregunta necesita datos, escribe UNA consulta SQL de solo lectura entre ` + "```sql y ```" + `.
2. No inventes cifras. Donde vaya un valor que saldrá de la consulta escribe el marcador X.
3. Después de la consulta explica brevemente qué mide.
4. Si la pregunta no necesita datos, responde directamente sin consulta.
5. Responde en español, de forma breve y clara.`

// DefaultSchema describes the experiment store to the model.
const DefaultSchema = `ESQUEMA DISPONIBLE

Maestras (id, nombre):
- city_master(city_id, city_name)
- typology_master(typology_id, typology_name)  ej: 'Super e hiper', 'Conveniencia', 'Droguerías'
- lever_master(lever_id, lever_name)  ej: 'Control', 'Punta de góndola', 'Metro cuadrado', 'Nevera en caja'
- category_master(category_id, category_name)
- measurement_unit_master(unit_id, unit_name)  ej: 'Cajas estandarizadas', 'Ventas'
- data_source_master(source_id, source_name)  ej: 'Sell In', 'Sell Out'
- period_master(period_id, period_label, period_type 'Week'|'Month', start_date, end_date)
- store_master(id, store_code_sellin, store_code_sellout, store_name, city_id, typology_id, lever_id, is_active, start_date, end_date)

Hechos:
- ab_test_result(id, store_id, category_id, unit_id, source_id, period_id, value)
- ab_test_summary(id, typology_id, lever_id, category_id, unit_id, source_id, average_variation, difference_vs_control)
- capex_fee(typology_id, lever_id, capex, fee)

Vistas recomendadas:
- v_chatbot_complete: cada resultado con store_name, city_name, typology_name, lever_name, category_name, unit_name, source_name, period_label, start_date, end_date, value
- v_dashboard_summary: source_name, typology_name, lever_name, category_name, unit_name, average_variation, difference_vs_control
- v_evolution_timeline: period_label, start_date, typology_name, lever_name, category_name, avg_value

Sinónimos: palanca = lever, tipología = typology, tienda = PDV = store, periodo = period.`

func systemPrompt(schema string) string {
	return preamble + "\n\n" + schema
}

func reformulationPrompt(utterance, draft string, res *query.Result) string {
	return fmt.Sprintf(`Pregunta del usuario: %s

Borrador de respuesta (puede contener marcadores X o cifras inventadas):
%s

Resultados reales de la consulta (%d filas):
%s
Reescribe el borrador usando ÚNICAMENTE los valores reales anteriores.
No agregues cifras que no aparezcan en los resultados. No incluyas SQL.`,
		utterance, draft, res.RowCount, query.FormatRows(res, 20))
}

func noDataPrompt(utterance string, a *models.Availability, failed bool) string {
	reason := "La consulta se ejecutó correctamente pero no devolvió filas."
	if failed {
		reason = "La consulta no pudo ejecutarse."
	}

	return fmt.Sprintf(`Pregunta del usuario: %s

%s

Datos disponibles:
%s
Explica al usuario que no hay datos para lo que pidió y sugiere dos o tres alternativas
usando los datos disponibles. No inventes cifras. No incluyas SQL.`,
		utterance, reason, describeAvailability(a))
}

func describeAvailability(a *models.Availability) string {
	if a == nil {
		return "- (sin información de disponibilidad)\n"
	}

	var b strings.Builder
	if a.PeriodCount > 0 {
		fmt.Fprintf(&b, "- Periodos: %d, desde %s hasta %s\n", a.PeriodCount, a.FirstPeriod, a.LastPeriod)
	}
	if len(a.SampleStores) > 0 {
		fmt.Fprintf(&b, "- Algunos PDV: %s\n", strings.Join(a.SampleStores, ", "))
	}
	if len(a.Cities) > 0 {
		fmt.Fprintf(&b, "- Ciudades: %s\n", strings.Join(a.Cities, ", "))
	}
	if len(a.Levers) > 0 {
		fmt.Fprintf(&b, "- Palancas: %s\n", strings.Join(a.Levers, ", "))
	}
	return b.String()
}
