package fields

import (
	"errors"
	"fmt"
	"time"
)

// ErrFutureUnloadDate rejects a remesa whose unload date is after today.
var ErrFutureUnloadDate = errors.New("unload date is in the future")

// Diagnostic records a fallback or normalization applied while deriving a
// model. Callers log them; they never stop processing.
type Diagnostic struct {
	Code    string
	Message string
}

// Diagnostic codes.
const (
	DiagLoadDateInvalid      = "LOAD_DATE_INVALID"
	DiagUsingEmissionDate    = "USING_EMISSION_DATE"
	DiagUsingCurrentDate     = "USING_CURRENT_DATE"
	DiagUnloadDateInvalid    = "UNLOAD_DATE_INVALID"
	DiagUnloadDateComputed   = "UNLOAD_DATE_COMPUTED"
	DiagLoadTimeInvalid      = "LOAD_TIME_INVALID"
	DiagUnloadTimeInvalid    = "UNLOAD_TIME_INVALID"
	DiagIssueDateUnavailable = "ISSUE_DATE_UNAVAILABLE"
)

// RemesaSource holds the agreed appointment values read off a remesa form.
type RemesaSource struct {
	AgreedLoadDate   string
	AgreedUnloadDate string
	AgreedLoadTime   string
	AgreedUnloadTime string
	EmissionDate     string
}

// Stay durations used when deriving remesa times.
const (
	LoadStayMinutes   = 60
	UnloadStayMinutes = 60
)

// DeriveRemesa computes the twelve fulfillment fields of a remesa from its
// agreed appointments.
func DeriveRemesa(src RemesaSource, today time.Time) (Model, []Diagnostic, error) {
	var diags []Diagnostic
	note := func(code, format string, args ...any) {
		diags = append(diags, Diagnostic{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	loadDate := src.AgreedLoadDate
	if !ValidDate(loadDate) {
		note(DiagLoadDateInvalid, "load date %q is invalid", loadDate)
		if ValidDate(src.EmissionDate) {
			loadDate = src.EmissionDate
			note(DiagUsingEmissionDate, "using emission date %s as load date", loadDate)
		} else {
			loadDate = FormatDate(today)
			note(DiagUsingCurrentDate, "emission date %q is invalid, using today %s", src.EmissionDate, loadDate)
		}
	}

	unloadDate := src.AgreedUnloadDate
	if !ValidDate(unloadDate) {
		note(DiagUnloadDateInvalid, "unload date %q is invalid", unloadDate)
		shifted, err := ShiftDate(loadDate, 1)
		if err != nil {
			return Model{}, diags, err
		}
		unloadDate = shifted
		note(DiagUnloadDateComputed, "using load date + 1 day: %s", unloadDate)
	}

	unload, err := ParseDate(unloadDate)
	if err != nil {
		return Model{}, diags, err
	}
	if After(unload, today) {
		return Model{}, diags, fmt.Errorf("%w: %s", ErrFutureUnloadDate, unloadDate)
	}

	loadTime, ok := ValidateTime(src.AgreedLoadTime)
	if !ok {
		note(DiagLoadTimeInvalid, "load time %q is invalid, using %s", src.AgreedLoadTime, loadTime)
	}
	loadDeparture := DepartureTime(loadTime, LoadStayMinutes)

	unloadTime, ok := ValidateTime(src.AgreedUnloadTime)
	if !ok {
		note(DiagUnloadTimeInvalid, "unload time %q is invalid, using %s", src.AgreedUnloadTime, unloadTime)
	}
	unloadArrival := AdjustUnloadArrival(unloadTime, loadDeparture)
	unloadDeparture := DepartureTime(unloadArrival, UnloadStayMinutes)

	m := New(KindRemesa).
		WithAll(LoadDates, loadDate).
		With(RoleLoadArrivalTime, loadTime).
		With(RoleLoadEntryTime, loadTime).
		With(RoleLoadDepartureTime, loadDeparture).
		WithAll(UnloadDates, unloadDate).
		With(RoleUnloadArrivalTime, unloadArrival).
		With(RoleUnloadEntryTime, unloadArrival).
		With(RoleUnloadDepartureTime, unloadDeparture)
	return m, diags, nil
}

// DocumentsDeliveryDays is the gap between manifest issue and document delivery.
const DocumentsDeliveryDays = 5

// DeriveManifest builds the first-attempt manifest model: every surcharge
// and discount at zero and the delivery date five days after issue.
func DeriveManifest(issueDate string, today time.Time) (Model, []Diagnostic) {
	var diags []Diagnostic
	delivery, err := ShiftDate(issueDate, DocumentsDeliveryDays)
	if err != nil {
		delivery = FormatDate(today.AddDate(0, 0, DocumentsDeliveryDays))
		diags = append(diags, Diagnostic{
			Code:    DiagIssueDateUnavailable,
			Message: fmt.Sprintf("issue date %q unavailable, using today + %d days", issueDate, DocumentsDeliveryDays),
		})
	}
	m := New(KindManifest).
		With(RoleLoadHoursSurcharge, "0").
		With(RoleUnloadHoursSurcharge, "0").
		With(RoleAdditionalFreight, "0").
		With(RoleFreightDiscount, "0").
		With(RoleDocumentsDelivered, delivery)
	return m, diags
}
