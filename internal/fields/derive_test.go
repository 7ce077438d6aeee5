package fields

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2025, 6, 20, 15, 0, 0, 0, time.UTC)

func diagCodes(diags []Diagnostic) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

func TestDeriveRemesa(t *testing.T) {
	m, diags, err := DeriveRemesa(RemesaSource{
		AgreedLoadDate:   "10/06/2025",
		AgreedUnloadDate: "11/06/2025",
		AgreedLoadTime:   "08:00",
		AgreedUnloadTime: "09:00",
		EmissionDate:     "09/06/2025",
	}, today)
	require.NoError(t, err)
	assert.Empty(t, diags)

	want := map[string]string{
		"FECHALLEGADACARGUE":           "10/06/2025",
		"FECHAENTRADACARGUE":           "10/06/2025",
		"FECHASALIDACARGUE":            "10/06/2025",
		"HORALLEGADACARGUEREMESA":      "08:00",
		"HORAENTRADACARGUEREMESA":      "08:00",
		"HORASALIDACARGUEREMESA":       "09:00",
		"FECHALLEGADADESCARGUE":        "11/06/2025",
		"FECHAENTRADADESCARGUE":        "11/06/2025",
		"FECHASALIDADESCARGUE":         "11/06/2025",
		"HORALLEGADADESCARGUECUMPLIDO": "09:16",
		"HORAENTRADADESCARGUECUMPLIDO": "09:16",
		"HORASALIDADESCARGUECUMPLIDO":  "10:16",
	}
	if diff := cmp.Diff(want, m.Snapshot()); diff != "" {
		t.Fatalf("derived model mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 12, m.Len())
}

func TestDeriveRemesaDateFallbacks(t *testing.T) {
	t.Run("load date falls back to emission date", func(t *testing.T) {
		m, diags, err := DeriveRemesa(RemesaSource{
			AgreedLoadDate: "",
			EmissionDate:   "01/06/2025",
			AgreedLoadTime: "07:00",
		}, today)
		require.NoError(t, err)
		assert.Equal(t, "01/06/2025", m.Get(RoleLoadEntryDate))
		assert.Equal(t, "02/06/2025", m.Get(RoleUnloadArrivalDate))
		assert.Equal(t, []string{DiagLoadDateInvalid, DiagUsingEmissionDate, DiagUnloadDateInvalid, DiagUnloadDateComputed, DiagUnloadTimeInvalid}, diagCodes(diags))
	})

	t.Run("emission date missing falls back to today", func(t *testing.T) {
		yesterday := today.AddDate(0, 0, -1)
		m, diags, err := DeriveRemesa(RemesaSource{
			AgreedUnloadDate: FormatDate(yesterday),
			AgreedLoadTime:   "07:00",
			AgreedUnloadTime: "12:00",
		}, today)
		require.NoError(t, err)
		assert.Equal(t, FormatDate(today), m.Get(RoleLoadArrivalDate))
		assert.Contains(t, diagCodes(diags), DiagUsingCurrentDate)
	})

	t.Run("computed unload date after today is rejected", func(t *testing.T) {
		_, _, err := DeriveRemesa(RemesaSource{
			AgreedLoadDate: FormatDate(today),
			AgreedLoadTime: "07:00",
		}, today)
		require.ErrorIs(t, err, ErrFutureUnloadDate)
	})
}

func TestDeriveRemesaRejectsFutureUnloadDate(t *testing.T) {
	_, _, err := DeriveRemesa(RemesaSource{
		AgreedLoadDate:   "19/06/2025",
		AgreedUnloadDate: "21/06/2025",
		AgreedLoadTime:   "08:00",
		AgreedUnloadTime: "10:00",
	}, today)
	require.ErrorIs(t, err, ErrFutureUnloadDate)

	_, _, err = DeriveRemesa(RemesaSource{
		AgreedLoadDate:   "19/06/2025",
		AgreedUnloadDate: "20/06/2025",
		AgreedLoadTime:   "08:00",
		AgreedUnloadTime: "10:00",
	}, today)
	require.NoError(t, err, "today itself is not in the future")
}

func TestDeriveRemesaInvalidTimes(t *testing.T) {
	m, diags, err := DeriveRemesa(RemesaSource{
		AgreedLoadDate:   "10/06/2025",
		AgreedUnloadDate: "10/06/2025",
		AgreedLoadTime:   "xx",
		AgreedUnloadTime: "23:55",
	}, today)
	require.NoError(t, err)
	assert.Equal(t, "00:00", m.Get(RoleLoadArrivalTime))
	assert.Equal(t, "01:00", m.Get(RoleLoadDepartureTime))
	assert.Equal(t, "23:55", m.Get(RoleUnloadArrivalTime))
	assert.Equal(t, "23:59", m.Get(RoleUnloadDepartureTime))
	assert.Equal(t, []string{DiagLoadTimeInvalid}, diagCodes(diags))
}

func TestDeriveManifest(t *testing.T) {
	m, diags := DeriveManifest("15/06/2025", today)
	assert.Empty(t, diags)
	assert.Equal(t, "20/06/2025", m.Get(RoleDocumentsDelivered))
	for _, r := range []Role{RoleLoadHoursSurcharge, RoleUnloadHoursSurcharge, RoleAdditionalFreight, RoleFreightDiscount} {
		assert.Equal(t, "0", m.Get(r), r.ID())
	}
	assert.False(t, m.Has(RoleAdditionalFreightReason))

	m, diags = DeriveManifest("", today)
	assert.Equal(t, "25/06/2025", m.Get(RoleDocumentsDelivered))
	assert.Equal(t, []string{DiagIssueDateUnavailable}, diagCodes(diags))
}
