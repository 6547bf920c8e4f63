package chat

import (
	"strings"
	"unicode"
)

const suggestionCount = 4

var initialQuestions = []string{
	"¿Cuántos puntos de venta tenemos por tipología?",
	"¿Qué palanca tuvo mayor diferencia contra control?",
	"Muéstrame la evolución de ventas de Nevera en caja en Conveniencia",
	"¿Cuál es el capex y fee de cada palanca?",
}

type topic struct {
	keywords  []string
	questions []string
}

// Topics are checked in order; the first whose keywords appear wins.
var topics = []topic{
	{
		keywords: []string{"roi", "capex", "fee", "inversión", "inversion", "payback", "retorno"},
		questions: []string{
			"¿Qué palanca recupera la inversión más rápido?",
			"¿Cómo cambia el ROI entre tipologías?",
			"¿Cuál es el capex total de implementar todas las palancas?",
			"¿Qué palanca tiene el fee mensual más bajo?",
		},
	},
	{
		keywords: []string{"evolución", "evolucion", "semana", "mes", "periodo", "período", "tendencia"},
		questions: []string{
			"¿En qué periodo empezó a verse el efecto de la palanca?",
			"¿Cómo se compara Sell In contra Sell Out en el mismo periodo?",
			"¿Cuál fue el mejor mes para el grupo control?",
			"¿La diferencia contra control se mantiene en el tiempo?",
		},
	},
	{
		keywords: []string{"palanca", "lever", "control", "góndola", "gondola", "nevera", "metro"},
		questions: []string{
			"¿Qué palanca tuvo mayor variación promedio?",
			"¿Cuál es la diferencia contra control por categoría?",
			"¿Cómo se comporta cada palanca en Droguerías?",
			"¿Qué palanca funciona mejor en Super e hiper?",
		},
	},
	{
		keywords: []string{"ciudad", "ciudades", "bogotá", "bogota", "medellín", "medellin", "cali", "barranquilla"},
		questions: []string{
			"¿Qué ciudad tiene más puntos de venta activos?",
			"¿Cómo se comparan las ventas entre ciudades?",
			"¿Qué palanca funciona mejor en cada ciudad?",
			"¿Cuántas tiendas control hay por ciudad?",
		},
	},
	{
		keywords: []string{"pdv", "tienda", "tiendas", "punto de venta", "puntos de venta", "store"},
		questions: []string{
			"¿Cuáles son los 5 PDV con mayores ventas?",
			"¿Cuántos PDV tiene cada palanca?",
			"¿Qué PDV tuvo mayor crecimiento?",
			"¿Cuántos PDV están activos por tipología?",
		},
	},
}

// InitialQuestions are offered when a session starts.
func InitialQuestions() []string {
	return append([]string(nil), initialQuestions...)
}

// FollowUps picks questions related to the last utterance, never repeating it.
func FollowUps(lastUtterance string) []string {
	words := " " + strings.Join(strings.FieldsFunc(strings.ToLower(lastUtterance), notWordRune), " ") + " "

	pool := initialQuestions
	for _, t := range topics {
		if containsWord(words, t.keywords) {
			pool = t.questions
			break
		}
	}

	asked := normalizeQuestion(lastUtterance)
	out := make([]string, 0, suggestionCount)
	for _, q := range append(append([]string(nil), pool...), initialQuestions...) {
		if len(out) == suggestionCount {
			break
		}
		if normalizeQuestion(q) == asked || contains(out, q) {
			continue
		}
		out = append(out, q)
	}
	return out
}

func normalizeQuestion(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.Trim(s, " ¿?¡!."))), " ")
}

func notWordRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// containsWord matches whole words or phrases in a space padded word list.
func containsWord(padded string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(padded, " "+k+" ") {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
