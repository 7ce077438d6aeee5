// Package classify maps the text of a portal alert to one of the known
// validation codes.
package classify

import (
	"strings"
)

// Code is a validation code reported by the portal.
type Code int

const (
	Unknown Code = iota
	CRE064
	CRE230
	CRE141
	CRE080
	CRE100
	CRE130
	CRE250
	CRE308
	CRE309
	CRE270
	CMA045
	CMA145
)

// Kind tells the retry loop what a code means for the document.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAlreadyCompleted ends the document as a success.
	KindAlreadyCompleted
	// KindUnrecoverable ends the document as a failure.
	KindUnrecoverable
	// KindCorrectable has a field correction and is retried.
	KindCorrectable
)

func (k Kind) String() string {
	switch k {
	case KindAlreadyCompleted:
		return "already_completed"
	case KindUnrecoverable:
		return "unrecoverable"
	case KindCorrectable:
		return "correctable"
	default:
		return "unknown"
	}
}

// Group collects codes that share a correction.
type Group int

const (
	GroupNone Group = iota
	GroupStaleness
	GroupSurcharge
)

type entry struct {
	token string
	code  Code
	kind  Kind
	group Group
}

// table is scanned in order; the first token contained in the alert wins.
var table = []entry{
	{"CRE064", CRE064, KindAlreadyCompleted, GroupNone},
	{"CRE230", CRE230, KindCorrectable, GroupNone},
	{"CRE141", CRE141, KindCorrectable, GroupNone},
	{"CRE080", CRE080, KindCorrectable, GroupStaleness},
	{"CRE100", CRE100, KindCorrectable, GroupStaleness},
	{"CRE130", CRE130, KindCorrectable, GroupStaleness},
	{"CRE250", CRE250, KindUnrecoverable, GroupNone},
	{"CRE308", CRE308, KindCorrectable, GroupNone},
	{"CRE309", CRE309, KindCorrectable, GroupNone},
	{"CRE270", CRE270, KindCorrectable, GroupNone},
	{"CMA045", CMA045, KindCorrectable, GroupSurcharge},
	{"CMA145", CMA145, KindCorrectable, GroupSurcharge},
}

var byCode = func() map[Code]entry {
	m := make(map[Code]entry, len(table))
	for _, e := range table {
		m[e.code] = e
	}
	return m
}()

// Classify returns the first known code whose token appears in text.
// Matching is case-sensitive.
func Classify(text string) Code {
	for _, e := range table {
		if strings.Contains(text, e.token) {
			return e.code
		}
	}
	return Unknown
}

// String returns the portal token, or "UNKNOWN".
func (c Code) String() string {
	if e, ok := byCode[c]; ok {
		return e.token
	}
	return "UNKNOWN"
}

// Kind returns the handling class of the code.
func (c Code) Kind() Kind {
	if e, ok := byCode[c]; ok {
		return e.kind
	}
	return KindUnknown
}

// Group returns the correction group of the code.
func (c Code) Group() Group {
	if e, ok := byCode[c]; ok {
		return e.group
	}
	return GroupNone
}

// Terminal reports whether the code ends processing without a correction.
func (c Code) Terminal() bool {
	return c.Kind() != KindCorrectable
}

// Known lists every token in priority order.
func Known() []string {
	out := make([]string, len(table))
	for i, e := range table {
		out[i] = e.token
	}
	return out
}

// IsHandled reports whether token is one of the known codes.
func IsHandled(token string) bool {
	for _, e := range table {
		if e.token == token {
			return true
		}
	}
	return false
}

// ExtractTokens returns every CRE or CMA prefixed word in text, with
// trailing punctuation removed. Used when analyzing logs for codes the
// table does not know yet.
func ExtractTokens(text string) []string {
	var out []string
	for _, w := range strings.Fields(text) {
		if !strings.HasPrefix(w, "CRE") && !strings.HasPrefix(w, "CMA") {
			continue
		}
		w = strings.TrimRight(w, ":,.;")
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}
