package eventlog

import (
	"fmt"
	"strings"

	"autorndc/internal/classify"
)

// lowSuccessRate triggers the prioritisation advice in the analysis.
const lowSuccessRate = 70.0

// RetryStat summarises retries of one document.
type RetryStat struct {
	Count int
	Max   int
}

// Analysis is the offline study of one event log.
type Analysis struct {
	Documents   int
	Succeeded   int
	Failed      int
	SuccessRate float64

	ErrorTokens    []Count
	EventsByType   map[Type]int
	ProblemDocs    []Count
	Exceptions     []Count
	Retries        map[string]RetryStat
	MaxRetry       int
	PeakHour       int
	PeakHourErrors int
	Unhandled      []string
}

func isProblem(t Type) bool {
	return t == TypeError || t == TypeException || t == TypeAlert
}

// Analyze studies events: per-document outcome, frequent error tokens,
// problem documents, exception lines, retries and the busiest error hour.
func Analyze(events []Event) Analysis {
	a := Analysis{
		EventsByType: make(map[Type]int),
		Retries:      make(map[string]RetryStat),
		PeakHour:     -1,
	}

	byDoc := make(map[string][]Type)
	var order []string
	tokens := make(map[string]int)
	problems := make(map[string]int)
	exceptions := make(map[string]int)
	hours := make(map[int]int)

	for _, ev := range events {
		if _, seen := byDoc[ev.Code]; !seen {
			order = append(order, ev.Code)
		}
		byDoc[ev.Code] = append(byDoc[ev.Code], ev.Type)

		if isProblem(ev.Type) {
			a.EventsByType[ev.Type]++
			problems[ev.Code]++
			hours[ev.Timestamp.Hour()]++
		}
		if ev.Type == TypeError || ev.Type == TypeAlert {
			for _, tok := range classify.ExtractTokens(ev.Message) {
				tokens[tok]++
			}
		}
		if ev.Type == TypeException && ev.StackTrace != "" {
			for _, line := range strings.Split(ev.StackTrace, "\n") {
				if strings.Contains(line, "Error:") || strings.Contains(line, "error:") || strings.Contains(line, "panic:") {
					exceptions[strings.TrimSpace(line)]++
				}
			}
		}
		if ev.Type == TypeRetry {
			st := a.Retries[ev.Code]
			st.Count++
			if ev.Retry > st.Max {
				st.Max = ev.Retry
			}
			a.Retries[ev.Code] = st
			if st.Max > a.MaxRetry {
				a.MaxRetry = st.Max
			}
		}
	}

	for _, code := range order {
		a.Documents++
		types := byDoc[code]
		switch {
		case hasType(types, TypeSuccess):
			a.Succeeded++
		case hasType(types, TypeError) || hasType(types, TypeException):
			a.Failed++
		}
	}
	if a.Documents > 0 {
		a.SuccessRate = float64(a.Succeeded) / float64(a.Documents) * 100
	}

	a.ErrorTokens = ranked(tokens)
	a.ProblemDocs = ranked(problems)
	a.Exceptions = ranked(exceptions)
	for h := 0; h < 24; h++ {
		if n := hours[h]; n > a.PeakHourErrors {
			a.PeakHour, a.PeakHourErrors = h, n
		}
	}
	for _, c := range a.ErrorTokens {
		if !classify.IsHandled(c.Key) {
			a.Unhandled = append(a.Unhandled, c.Key)
		}
	}
	return a
}

func hasType(types []Type, t Type) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func top(c []Count, n int) []Count {
	if len(c) > n {
		return c[:n]
	}
	return c
}

// Markdown renders the analysis for the terminal.
func (a Analysis) Markdown(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Análisis de %s\n\n", name)

	b.WriteString("## Estadísticas generales\n\n")
	fmt.Fprintf(&b, "- Documentos procesados: %d\n- Exitosos: %d\n- Fallidos: %d\n- Tasa de éxito: %.1f%%\n\n",
		a.Documents, a.Succeeded, a.Failed, a.SuccessRate)

	b.WriteString("## Códigos de error más comunes\n\n")
	for _, c := range top(a.ErrorTokens, 10) {
		fmt.Fprintf(&b, "- `%s`: %d ocurrencias\n", c.Key, c.N)
	}

	b.WriteString("\n## Eventos con problemas\n\n")
	for _, t := range []Type{TypeAlert, TypeError, TypeException} {
		if n := a.EventsByType[t]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d eventos\n", t, n)
		}
	}

	b.WriteString("\n## Documentos con más problemas\n\n")
	for _, c := range top(a.ProblemDocs, 10) {
		fmt.Fprintf(&b, "- %s: %d errores\n", c.Key, c.N)
	}

	if len(a.Exceptions) > 0 {
		b.WriteString("\n## Excepciones más comunes\n\n")
		for _, c := range top(a.Exceptions, 5) {
			fmt.Fprintf(&b, "- [%dx] %s\n", c.N, c.Key)
		}
	}

	b.WriteString("\n## Reintentos\n\n")
	if len(a.Retries) == 0 {
		b.WriteString("No se registraron reintentos.\n")
	} else {
		fmt.Fprintf(&b, "- Documentos con reintentos: %d\n- Máximo de reintentos en un documento: %d\n",
			len(a.Retries), a.MaxRetry)
	}

	if a.PeakHour >= 0 {
		fmt.Fprintf(&b, "\n## Patrones temporales\n\nHora con más errores: %02d:00 (%d errores)\n", a.PeakHour, a.PeakHourErrors)
	}

	if len(a.Unhandled) > 0 || a.SuccessRate < lowSuccessRate {
		b.WriteString("\n## Recomendaciones\n\n")
		if len(a.Unhandled) > 0 {
			b.WriteString("Agregar manejadores para estos códigos:\n\n")
			for _, code := range a.Unhandled[:min(5, len(a.Unhandled))] {
				fmt.Fprintf(&b, "- %s\n", code)
			}
		}
		if a.Documents > 0 && a.SuccessRate < lowSuccessRate {
			b.WriteString("\nLa tasa de éxito es baja: revisar los datos de entrada y los errores más comunes.\n")
		}
	}
	return b.String()
}
