package correct

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorndc/internal/classify"
	"autorndc/internal/fields"
)

var testToday = time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)

func baseRemesa() fields.Model {
	return fields.New(fields.KindRemesa).
		WithAll(fields.LoadDates, "10/06/2025").
		With(fields.RoleLoadArrivalTime, "08:00").
		With(fields.RoleLoadEntryTime, "08:00").
		With(fields.RoleLoadDepartureTime, "09:00").
		WithAll(fields.UnloadDates, "11/06/2025").
		With(fields.RoleUnloadArrivalTime, "14:00").
		With(fields.RoleUnloadEntryTime, "14:00").
		With(fields.RoleUnloadDepartureTime, "22:30")
}

func TestCRE141MovesDepartureFromEntry(t *testing.T) {
	opts := DefaultOptions()
	opts.CRE141OffsetMinutes = 1

	got, err := Remesa(classify.CRE141, baseRemesa(), Context{}, opts)
	require.NoError(t, err)
	assert.Equal(t, "08:01", got.Get(fields.RoleLoadDepartureTime))
	assert.Equal(t, []fields.Role{fields.RoleLoadDepartureTime}, baseRemesa().Diff(got))

	got, err = Remesa(classify.CRE141, baseRemesa().With(fields.RoleLoadEntryTime, "23:45"), Context{}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "23:59", got.Get(fields.RoleLoadDepartureTime))
}

func TestCRE230BlanksUnloadDeparture(t *testing.T) {
	got, err := Remesa(classify.CRE230, baseRemesa(), Context{}, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, got.Has(fields.RoleUnloadDepartureTime))
	assert.Equal(t, "", got.Get(fields.RoleUnloadDepartureTime))
}

func TestStalenessRebasesOnEmissionDate(t *testing.T) {
	for _, code := range []classify.Code{classify.CRE080, classify.CRE100, classify.CRE130} {
		t.Run(code.String(), func(t *testing.T) {
			got, err := Remesa(code, baseRemesa(), Context{EmissionDate: "01/06/2025"}, DefaultOptions())
			require.NoError(t, err)

			want := baseRemesa().
				WithAll(fields.LoadDates, "01/06/2025").
				WithAll(fields.UnloadDates, "02/06/2025")
			if diff := cmp.Diff(want.Snapshot(), got.Snapshot()); diff != "" {
				t.Fatalf("model mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err := Remesa(classify.CRE080, baseRemesa(), Context{EmissionDate: ""}, DefaultOptions())
	assert.Error(t, err)
}

func TestCRE270UsesLongerUnloadOffset(t *testing.T) {
	got, err := Remesa(classify.CRE270, baseRemesa(), Context{EmissionDate: "30/06/2025"}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "30/06/2025", got.Get(fields.RoleLoadDepartureDate))
	assert.Equal(t, "03/07/2025", got.Get(fields.RoleUnloadDepartureDate))
	assert.Equal(t, "14:00", got.Get(fields.RoleUnloadArrivalTime))
}

func TestCRE308ShiftsUnloadDates(t *testing.T) {
	got, err := Remesa(classify.CRE308, baseRemesa(), Context{}, DefaultOptions())
	require.NoError(t, err)
	for _, r := range fields.UnloadDates {
		assert.Equal(t, "16/06/2025", got.Get(r), r.ID())
	}
	assert.Equal(t, "10/06/2025", got.Get(fields.RoleLoadArrivalDate))
	assert.Equal(t, "22:30", got.Get(fields.RoleUnloadDepartureTime))
}

func TestCRE309ShiftsUnloadDatesAndTimes(t *testing.T) {
	got, err := Remesa(classify.CRE309, baseRemesa(), Context{}, DefaultOptions())
	require.NoError(t, err)
	for _, r := range fields.UnloadDates {
		assert.Equal(t, "14/06/2025", got.Get(r), r.ID())
	}
	assert.Equal(t, "17:00", got.Get(fields.RoleUnloadArrivalTime))
	assert.Equal(t, "17:00", got.Get(fields.RoleUnloadEntryTime))
	assert.Equal(t, "23:59", got.Get(fields.RoleUnloadDepartureTime))
}

func TestRemesaRejectsTerminalAndManifestCodes(t *testing.T) {
	for _, code := range []classify.Code{classify.Unknown, classify.CRE064, classify.CRE250, classify.CMA045} {
		got, err := Remesa(code, baseRemesa(), Context{}, DefaultOptions())
		require.ErrorIs(t, err, ErrNotApplicable, code.String())
		assert.Empty(t, baseRemesa().Diff(got))
	}
}

func TestManifestSurchargeIsMonotonic(t *testing.T) {
	opts := DefaultOptions()
	m, _ := fields.DeriveManifest("01/06/2025", testToday)
	var surcharge int64
	var progression []int64
	for i := 0; i < 3; i++ {
		var err error
		prev := surcharge
		m, surcharge, err = Manifest(classify.CMA045, m, surcharge, opts)
		require.NoError(t, err)
		require.Equal(t, prev+opts.SurchargeIncrement, surcharge)
		progression = append(progression, surcharge)
	}
	assert.Equal(t, []int64{100000, 200000, 300000}, progression)
	assert.Equal(t, "300000", m.Get(fields.RoleAdditionalFreight))
	assert.Equal(t, "R", m.Get(fields.RoleAdditionalFreightReason))
	assert.Equal(t, "06/06/2025", m.Get(fields.RoleDocumentsDelivered))
}

func TestManifestRejectsRemesaCodes(t *testing.T) {
	m, _ := fields.DeriveManifest("01/06/2025", testToday)
	_, s, err := Manifest(classify.CRE141, m, 200000, DefaultOptions())
	require.ErrorIs(t, err, ErrNotApplicable)
	assert.Equal(t, int64(200000), s)
}

func TestEscalateNeverDecreases(t *testing.T) {
	assert.Equal(t, int64(100000), Escalate(0, DefaultOptions()))
	assert.Equal(t, int64(500), Escalate(500, Options{SurchargeIncrement: -100}))
}

func TestWithSurchargeZeroLeavesReason(t *testing.T) {
	m := WithSurcharge(fields.New(fields.KindManifest), 0, DefaultOptions())
	assert.Equal(t, "0", m.Get(fields.RoleAdditionalFreight))
	assert.False(t, m.Has(fields.RoleAdditionalFreightReason))
}
