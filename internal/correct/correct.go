// Package correct holds the field corrections applied after the portal
// rejects a submission. Every function is pure: it takes the current model
// and returns a revised copy.
package correct

import (
	"errors"
	"fmt"
	"strconv"

	"autorndc/internal/classify"
	"autorndc/internal/fields"
)

// ErrNotApplicable is returned for codes that have no correction for the
// document kind.
var ErrNotApplicable = errors.New("no correction for code")

// Context carries values read fresh from the form before correcting.
type Context struct {
	// EmissionDate is FECHAEMISION on remesas.
	EmissionDate string
}

// Options tune the corrections.
type Options struct {
	CRE141OffsetMinutes int
	SurchargeIncrement  int64
	SurchargeReason     string
}

// DefaultOptions returns the production tuning.
func DefaultOptions() Options {
	return Options{
		CRE141OffsetMinutes: 30,
		SurchargeIncrement:  100000,
		SurchargeReason:     "R",
	}
}

// Day and hour offsets per correction.
const (
	stalenessLoadDays   = 0
	stalenessUnloadDays = 1
	extendedUnloadDays  = 3
	cre308UnloadDays    = 5
	cre309UnloadDays    = 3
	cre309UnloadMinutes = 3 * 60
)

// Remesa applies the correction for code to a remesa model.
func Remesa(code classify.Code, m fields.Model, ctx Context, opts Options) (fields.Model, error) {
	switch code {
	case classify.CRE141:
		entry := m.Get(fields.RoleLoadEntryTime)
		return m.With(fields.RoleLoadDepartureTime, fields.DepartureTime(entry, opts.CRE141OffsetMinutes)), nil

	case classify.CRE230:
		return m.With(fields.RoleUnloadDepartureTime, ""), nil

	case classify.CRE080, classify.CRE100, classify.CRE130:
		return rebaseOnEmission(m, ctx.EmissionDate, stalenessUnloadDays)

	case classify.CRE270:
		return rebaseOnEmission(m, ctx.EmissionDate, extendedUnloadDays)

	case classify.CRE308:
		return shiftUnloadDates(m, cre308UnloadDays)

	case classify.CRE309:
		out, err := shiftUnloadDates(m, cre309UnloadDays)
		if err != nil {
			return m, err
		}
		for _, r := range fields.UnloadTimes {
			if !out.Has(r) {
				continue
			}
			out = out.With(r, fields.AddMinutes(out.Get(r), cre309UnloadMinutes))
		}
		return out, nil
	}
	return m, fmt.Errorf("%w %s on %s", ErrNotApplicable, code, fields.KindRemesa)
}

func rebaseOnEmission(m fields.Model, emission string, unloadDays int) (fields.Model, error) {
	load, err := fields.ShiftDate(emission, stalenessLoadDays)
	if err != nil {
		return m, fmt.Errorf("emission date: %w", err)
	}
	unload, err := fields.ShiftDate(emission, unloadDays)
	if err != nil {
		return m, fmt.Errorf("emission date: %w", err)
	}
	return m.WithAll(fields.LoadDates, load).WithAll(fields.UnloadDates, unload), nil
}

func shiftUnloadDates(m fields.Model, days int) (fields.Model, error) {
	shifted, err := fields.ShiftDate(m.Get(fields.RoleUnloadArrivalDate), days)
	if err != nil {
		return m, fmt.Errorf("unload arrival date: %w", err)
	}
	return m.WithAll(fields.UnloadDates, shifted), nil
}

// Escalate returns the next surcharge value. It never decreases.
func Escalate(current int64, opts Options) int64 {
	inc := opts.SurchargeIncrement
	if inc < 0 {
		inc = 0
	}
	return current + inc
}

// Manifest applies the correction for code to a manifest model. It returns
// the revised model and the surcharge to submit with it.
func Manifest(code classify.Code, m fields.Model, surcharge int64, opts Options) (fields.Model, int64, error) {
	if code.Group() != classify.GroupSurcharge {
		return m, surcharge, fmt.Errorf("%w %s on %s", ErrNotApplicable, code, fields.KindManifest)
	}
	next := Escalate(surcharge, opts)
	return WithSurcharge(m, next, opts), next, nil
}

// WithSurcharge writes the surcharge into the additional freight field and
// selects the reason when it is positive.
func WithSurcharge(m fields.Model, surcharge int64, opts Options) fields.Model {
	out := m.With(fields.RoleAdditionalFreight, strconv.FormatInt(surcharge, 10))
	if surcharge > 0 {
		out = out.With(fields.RoleAdditionalFreightReason, opts.SurchargeReason)
	}
	return out
}
