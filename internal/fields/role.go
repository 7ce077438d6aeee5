// Package fields models the form state of one RNDC document as values keyed
// by field role, plus the date and time rules used to derive and repair them.
package fields

import "fmt"

// Kind identifies the document type a form belongs to.
type Kind int

const (
	KindRemesa Kind = iota
	KindManifest
)

// String returns the process name used in event logs.
func (k Kind) String() string {
	switch k {
	case KindRemesa:
		return "REMESA"
	case KindManifest:
		return "MANIFIESTO"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Slug is the lowercase plural used in CLI arguments and file names.
func (k Kind) Slug() string {
	switch k {
	case KindRemesa:
		return "remesas"
	case KindManifest:
		return "manifiestos"
	default:
		return "unknown"
	}
}

// ParseKind accepts the CLI spelling of a document kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "remesas", "remesa", "REMESA":
		return KindRemesa, nil
	case "manifiestos", "manifiesto", "MANIFIESTO":
		return KindManifest, nil
	}
	return 0, fmt.Errorf("unknown document kind %q (want remesas or manifiestos)", s)
}

// Role names one editable field of a fulfillment form.
type Role int

const (
	RoleLoadArrivalDate Role = iota + 1
	RoleLoadEntryDate
	RoleLoadDepartureDate
	RoleLoadArrivalTime
	RoleLoadEntryTime
	RoleLoadDepartureTime
	RoleUnloadArrivalDate
	RoleUnloadEntryDate
	RoleUnloadDepartureDate
	RoleUnloadArrivalTime
	RoleUnloadEntryTime
	RoleUnloadDepartureTime

	RoleLoadHoursSurcharge
	RoleUnloadHoursSurcharge
	RoleAdditionalFreight
	RoleFreightDiscount
	RoleDocumentsDelivered
	RoleAdditionalFreightReason
)

// roleIDs maps each role to the element id suffix used by the portal.
var roleIDs = map[Role]string{
	RoleLoadArrivalDate:     "FECHALLEGADACARGUE",
	RoleLoadEntryDate:       "FECHAENTRADACARGUE",
	RoleLoadDepartureDate:   "FECHASALIDACARGUE",
	RoleLoadArrivalTime:     "HORALLEGADACARGUEREMESA",
	RoleLoadEntryTime:       "HORAENTRADACARGUEREMESA",
	RoleLoadDepartureTime:   "HORASALIDACARGUEREMESA",
	RoleUnloadArrivalDate:   "FECHALLEGADADESCARGUE",
	RoleUnloadEntryDate:     "FECHAENTRADADESCARGUE",
	RoleUnloadDepartureDate: "FECHASALIDADESCARGUE",
	RoleUnloadArrivalTime:   "HORALLEGADADESCARGUECUMPLIDO",
	RoleUnloadEntryTime:     "HORAENTRADADESCARGUECUMPLIDO",
	RoleUnloadDepartureTime: "HORASALIDADESCARGUECUMPLIDO",

	RoleLoadHoursSurcharge:      "VALORADICIONALHORASCARGUE",
	RoleUnloadHoursSurcharge:    "VALORADICIONALHORASDESCARGUE",
	RoleAdditionalFreight:       "VALORADICIONALFLETE",
	RoleFreightDiscount:         "VALORDESCUENTOFLETE",
	RoleDocumentsDelivered:      "FECHAENTREGADOCUMENTOS",
	RoleAdditionalFreightReason: "NOMMOTIVOVALORADICIONAL",
}

// ID returns the portal element id suffix for the role.
func (r Role) ID() string {
	if id, ok := roleIDs[r]; ok {
		return id
	}
	return fmt.Sprintf("ROLE_%d", int(r))
}

func (r Role) String() string { return r.ID() }

// IsSelect reports whether the role is backed by a <select> element.
func (r Role) IsSelect() bool {
	return r == RoleAdditionalFreightReason
}

// Groups of remesa roles touched together by corrections.
var (
	LoadDates   = []Role{RoleLoadArrivalDate, RoleLoadEntryDate, RoleLoadDepartureDate}
	UnloadDates = []Role{RoleUnloadArrivalDate, RoleUnloadEntryDate, RoleUnloadDepartureDate}
	UnloadTimes = []Role{RoleUnloadArrivalTime, RoleUnloadEntryTime, RoleUnloadDepartureTime}
)

var remesaOrder = []Role{
	RoleLoadArrivalDate, RoleLoadEntryDate, RoleLoadDepartureDate,
	RoleLoadArrivalTime, RoleLoadEntryTime, RoleLoadDepartureTime,
	RoleUnloadArrivalDate, RoleUnloadEntryDate, RoleUnloadDepartureDate,
	RoleUnloadArrivalTime, RoleUnloadEntryTime, RoleUnloadDepartureTime,
}

var manifestOrder = []Role{
	RoleLoadHoursSurcharge, RoleUnloadHoursSurcharge,
	RoleAdditionalFreight, RoleFreightDiscount,
	RoleDocumentsDelivered, RoleAdditionalFreightReason,
}

// Roles returns the fill order for the kind's form.
func (k Kind) Roles() []Role {
	switch k {
	case KindRemesa:
		return append([]Role(nil), remesaOrder...)
	case KindManifest:
		return append([]Role(nil), manifestOrder...)
	}
	return nil
}
