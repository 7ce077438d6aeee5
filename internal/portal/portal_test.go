package portal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorndc/internal/browser"
	"autorndc/internal/browser/browsertest"
	"autorndc/internal/fields"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newSession(f *browsertest.Fake) *Session {
	s := NewSession(f, DefaultEndpoints(), DefaultTimeouts(), nil)
	s.Sleep = noSleep
	return s
}

// remesaPage returns a fake that renders a blank remesa form on navigation.
func remesaPage() *browsertest.Fake {
	f := browsertest.New()
	f.OnNavigate = func(f *browsertest.Fake, url string) {
		if url != DefaultRemesaURL {
			return
		}
		f.SetLocked(RemesaLayout.ID(RemesaLayout.CodeField), "")
		f.SetLocked(RemesaLayout.ID(RemesaLayout.MessageField), "")
		for _, r := range criticalRemesaFields {
			f.SetLocked(RemesaLayout.ID(r.ID()), "")
		}
	}
	return f
}

func TestLoginFillsCredentialsAndWaitsForMenu(t *testing.T) {
	f := browsertest.New()
	f.OnNavigate = func(f *browsertest.Fake, url string) {
		f.SetLocked(UsernameID, "")
		f.SetLocked(PasswordID, "")
		f.SetLocked(LoginID, "")
	}
	f.OnClick[LoginID] = func(f *browsertest.Fake) { f.SetLocked(MenuMarkerID, "") }

	s := newSession(f)
	require.NoError(t, s.Login(context.Background(), "operador", "secreto"))

	assert.Equal(t, []string{DefaultLoginURL}, f.Navigations)
	assert.Equal(t, []string{"operador"}, f.FillsFor(UsernameID))
	assert.Equal(t, []string{"secreto"}, f.FillsFor(PasswordID))
	assert.Equal(t, 1, f.ClickCount(LoginID))
}

func TestLoginFailsWithoutMenu(t *testing.T) {
	f := browsertest.New()
	f.OnNavigate = func(f *browsertest.Fake, url string) {
		f.SetLocked(UsernameID, "")
		f.SetLocked(PasswordID, "")
		f.SetLocked(LoginID, "")
	}
	err := newSession(f).Login(context.Background(), "u", "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrTimeout)
}

func TestOpenFormClearsStateAndWaitsForCodeField(t *testing.T) {
	f := remesaPage()
	s := newSession(f)
	require.NoError(t, s.OpenForm(context.Background(), fields.KindRemesa))
	assert.Equal(t, 1, f.Cleared)
	assert.Equal(t, []string{DefaultRemesaURL}, f.Navigations)

	err := s.OpenForm(context.Background(), fields.KindManifest)
	assert.ErrorIs(t, err, browser.ErrTimeout)
}

func TestEnterCodeDetectsNotIssued(t *testing.T) {
	f := remesaPage()
	s := newSession(f)
	ctx := context.Background()
	require.NoError(t, s.OpenForm(ctx, fields.KindRemesa))

	codeID := RemesaLayout.ID(RemesaLayout.CodeField)
	f.OnClick["blur:"+codeID] = func(f *browsertest.Fake) {
		f.SetLocked(RemesaLayout.ID("MENSAJE"), "La remesa no ha sido emitida o ya está cerrada")
	}
	err := s.EnterCode(ctx, fields.KindRemesa, "R1")
	assert.ErrorIs(t, err, ErrNotIssued)
	assert.Equal(t, []string{"R1"}, f.FillsFor(codeID))
}

func TestEnterCodeIgnoresInformationalRemesaMessage(t *testing.T) {
	f := remesaPage()
	s := newSession(f)
	ctx := context.Background()
	require.NoError(t, s.OpenForm(ctx, fields.KindRemesa))
	f.Set(RemesaLayout.ID("MENSAJE"), "Datos cargados")
	assert.NoError(t, s.EnterCode(ctx, fields.KindRemesa, "R1"))
}

func TestEnterCodeRejectsManifestError(t *testing.T) {
	f := browsertest.New()
	f.Set(ManifestLayout.ID(ManifestLayout.CodeField), "")
	f.Set(ManifestLayout.ID(ManifestLayout.MessageField), "Manifiesto no existe")
	err := newSession(f).EnterCode(context.Background(), fields.KindManifest, "M1")
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "Manifiesto no existe")
}

func TestVerifyRemesaLoaded(t *testing.T) {
	ctx := context.Background()

	t.Run("loaded on first check", func(t *testing.T) {
		f := remesaPage()
		s := newSession(f)
		require.NoError(t, s.OpenForm(ctx, fields.KindRemesa))
		require.NoError(t, s.VerifyRemesaLoaded(ctx, "R1", 3))
		assert.Len(t, f.Navigations, 1)
	})

	t.Run("never loads", func(t *testing.T) {
		f := remesaPage()
		s := newSession(f)
		require.NoError(t, s.OpenForm(ctx, fields.KindRemesa))
		f.Hide(RemesaLayout.ID(fields.RoleUnloadDepartureTime.ID()))
		err := s.VerifyRemesaLoaded(ctx, "R1", 3)
		assert.ErrorIs(t, err, ErrFormNotLoaded)
		// One initial load plus two reloads.
		assert.Len(t, f.Navigations, 3)
	})

	t.Run("loads after reload", func(t *testing.T) {
		f := remesaPage()
		missing := RemesaLayout.ID(fields.RoleUnloadArrivalDate.ID())
		render := f.OnNavigate
		f.OnNavigate = func(f *browsertest.Fake, url string) {
			render(f, url)
			f.RemoveLocked(missing)
		}
		f.OnClick["blur:"+RemesaLayout.ID(RemesaLayout.CodeField)] = func(f *browsertest.Fake) {
			f.SetLocked(missing, "")
		}
		s := newSession(f)
		require.NoError(t, s.OpenForm(ctx, fields.KindRemesa))
		require.NoError(t, s.VerifyRemesaLoaded(ctx, "R1", 3))
		assert.Len(t, f.Navigations, 2)
	})
}

func TestFillModelContinuesPastFailures(t *testing.T) {
	f := browsertest.New()
	m := fields.New(fields.KindManifest).
		With(fields.RoleLoadHoursSurcharge, "0").
		With(fields.RoleAdditionalFreight, "100000").
		With(fields.RoleAdditionalFreightReason, "R")
	for _, r := range []fields.Role{fields.RoleLoadHoursSurcharge, fields.RoleAdditionalFreight, fields.RoleAdditionalFreightReason} {
		f.Set(ManifestLayout.ID(r.ID()), "")
	}
	boom := errors.New("not writable")
	f.Fail("fill", ManifestLayout.ID(fields.RoleLoadHoursSurcharge.ID()), boom)

	failures := newSession(f).FillModel(context.Background(), m)
	require.Len(t, failures, 1)
	assert.Equal(t, fields.RoleLoadHoursSurcharge, failures[0].Role)
	assert.ErrorIs(t, failures[0].Err, boom)
	assert.Equal(t, "100000", f.Value(ManifestLayout.ID(fields.RoleAdditionalFreight.ID())))
	assert.Equal(t, "R", f.Selected(ManifestLayout.ID(fields.RoleAdditionalFreightReason.ID())))
}

func TestAwaitResult(t *testing.T) {
	ctx := context.Background()

	t.Run("alert", func(t *testing.T) {
		f := browsertest.New()
		f.QueueAlert(" CRE141 hora salida ")
		res, err := newSession(f).AwaitResult(ctx, fields.KindRemesa)
		require.NoError(t, err)
		assert.Equal(t, Result{Alert: "CRE141 hora salida", HasAlert: true}, res)
	})

	t.Run("success marker", func(t *testing.T) {
		f := browsertest.New()
		f.Set(ManifestLayout.SuccessMarker, "")
		res, err := newSession(f).AwaitResult(ctx, fields.KindManifest)
		require.NoError(t, err)
		assert.True(t, res.Succeeded)
	})

	t.Run("nothing", func(t *testing.T) {
		res, err := newSession(browsertest.New()).AwaitResult(ctx, fields.KindRemesa)
		require.NoError(t, err)
		assert.Equal(t, Result{}, res)
	})

	t.Run("session lost", func(t *testing.T) {
		f := browsertest.New()
		f.Fail("wait present", RemesaLayout.SuccessMarker, browser.ErrSessionLost)
		_, err := newSession(f).AwaitResult(ctx, fields.KindRemesa)
		assert.ErrorIs(t, err, browser.ErrSessionLost)
	})
}

func TestSaveClicksButton(t *testing.T) {
	f := browsertest.New()
	f.Set(RemesaLayout.ID("btGuardar"), "")
	require.NoError(t, newSession(f).Save(context.Background(), fields.KindRemesa))
	assert.Equal(t, 1, f.ClickCount(RemesaLayout.ID("btGuardar")))

	err := newSession(browsertest.New()).Save(context.Background(), fields.KindManifest)
	assert.Error(t, err)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), 0))
}
