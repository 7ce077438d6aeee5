//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorndc/internal/browser"
	"autorndc/internal/logging"
)

const formPage = `<html><body>
<input id="CODE" type="text" />
<span id="MSG">listo</span>
<select id="TIPO"><option value="">--</option><option value="N">Cumplido Normal</option></select>
<select id="MOTIVO"><option value="">--</option><option value="R">Reajuste</option></select>
<button id="SAVE" onclick="alert('CRE141 hora ' + document.getElementById('CODE').value)">Guardar</button>
<button id="OK" onclick="document.body.insertAdjacentHTML('beforeend', '<div id=DONE>ok</div>')">Ok</button>
<script>localStorage.setItem('k', 'v');</script>
</body></html>`

// formServer serves formPage and returns its URL, a headless config and a
// context bounding the whole test.
func formServer(t *testing.T) (string, browser.Config, context.Context) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintln(w, formPage)
	}))
	t.Cleanup(ts.Close)

	cfg := browser.DefaultConfig()
	cfg.Headless = true
	cfg.NavigationTimeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)
	return ts.URL, cfg, ctx
}

func closeDriver(t *testing.T, d browser.Driver) {
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Logf("Shutdown error: %v", err)
		}
	})
}

func newDriver(t *testing.T) (browser.Driver, string, context.Context) {
	t.Helper()
	url, cfg, ctx := formServer(t)
	d, err := browser.NewRod(ctx, cfg, logging.Nop().Get(logging.CategoryBrowser))
	require.NoError(t, err, "Failed to start browser")
	closeDriver(t, d)
	return d, url, ctx
}

func TestRodDriver_FormInteraction_Integration(t *testing.T) {
	d, url, ctx := newDriver(t)

	require.NoError(t, d.Navigate(ctx, url))
	require.NoError(t, d.WaitReady(ctx, 10*time.Second))

	require.NoError(t, d.Fill(ctx, "CODE", "R-100"))
	got, err := d.Read(ctx, "CODE")
	require.NoError(t, err)
	assert.Equal(t, "R-100", got)

	text, err := d.Read(ctx, "MSG")
	require.NoError(t, err)
	assert.Equal(t, "listo", text)

	require.NoError(t, d.SelectText(ctx, "TIPO", "Cumplido Normal"))
	v, err := d.Read(ctx, "TIPO")
	require.NoError(t, err)
	assert.Equal(t, "N", v)

	require.NoError(t, d.SelectValue(ctx, "MOTIVO", "R"))
	v, err = d.Read(ctx, "MOTIVO")
	require.NoError(t, err)
	assert.Equal(t, "R", v)

	shown, err := d.Displayed(ctx, "MISSING")
	require.NoError(t, err)
	assert.False(t, shown)
}

func TestRodDriver_Alerts_Integration(t *testing.T) {
	d, url, ctx := newDriver(t)
	require.NoError(t, d.Navigate(ctx, url))
	require.NoError(t, d.Fill(ctx, "CODE", "X1"))

	assert.False(t, d.AlertPresent(ctx, 200*time.Millisecond))

	require.NoError(t, d.Click(ctx, "SAVE"))
	require.True(t, d.AlertPresent(ctx, 5*time.Second))
	msg, err := d.DismissAlert(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CRE141 hora X1", msg)

	require.NoError(t, d.Click(ctx, "OK"))
	assert.False(t, d.AlertPresent(ctx, 500*time.Millisecond))
	require.NoError(t, d.WaitPresent(ctx, "DONE", 5*time.Second))

	err = d.WaitPresent(ctx, "NEVER", 300*time.Millisecond)
	assert.ErrorIs(t, err, browser.ErrTimeout)
}

func TestRodDriver_ClearLocalState_Integration(t *testing.T) {
	d, url, ctx := newDriver(t)
	require.NoError(t, d.Navigate(ctx, url))
	require.NoError(t, d.ClearLocalState(ctx))
	require.NoError(t, d.Reload(ctx))
	require.NoError(t, d.WaitReady(ctx, 10*time.Second))
}
