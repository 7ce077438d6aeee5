package eventlog

import (
	"fmt"
	"sort"
	"strings"
)

// Stats counts events by type and error code.
type Stats struct {
	Total      int
	ByType     map[Type]int
	ErrorCodes map[string]int
	Succeeded  int
	Failed     int
}

// Summarize computes Stats over events.
func Summarize(events []Event) Stats {
	s := Stats{
		Total:      len(events),
		ByType:     make(map[Type]int),
		ErrorCodes: make(map[string]int),
	}
	for _, ev := range events {
		s.ByType[ev.Type]++
		switch ev.Type {
		case TypeSuccess:
			s.Succeeded++
		case TypeError, TypeException:
			s.Failed++
		}
		if ev.ErrorCode != "" {
			s.ErrorCodes[ev.ErrorCode]++
		}
	}
	return s
}

// Count is a label with its number of occurrences.
type Count struct {
	Key string
	N   int
}

// ranked sorts a histogram by count descending, then key.
func ranked(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, n := range m {
		out = append(out, Count{Key: k, N: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].N != out[j].N {
			return out[i].N > out[j].N
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// TopErrorCodes returns error codes ordered by frequency.
func (s Stats) TopErrorCodes() []Count { return ranked(s.ErrorCodes) }

// Markdown renders the end-of-run summary.
func (s Stats) Markdown(process string, files ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Reporte de procesamiento: %s\n\n", process)
	fmt.Fprintf(&b, "| Total de eventos | Exitosos | Fallidos |\n|---|---|---|\n| %d | %d | %d |\n\n",
		s.Total, s.Succeeded, s.Failed)

	b.WriteString("## Eventos por tipo\n\n")
	types := make(map[string]int, len(s.ByType))
	for t, n := range s.ByType {
		types[string(t)] = n
	}
	for _, c := range ranked(types) {
		fmt.Fprintf(&b, "- %s: %d\n", c.Key, c.N)
	}

	if len(s.ErrorCodes) > 0 {
		b.WriteString("\n## Códigos de error más comunes\n\n")
		for _, c := range s.TopErrorCodes() {
			fmt.Fprintf(&b, "- `%s`: %d ocurrencias\n", c.Key, c.N)
		}
	}
	if len(files) > 0 {
		b.WriteString("\n## Logs\n\n")
		for _, f := range files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}
