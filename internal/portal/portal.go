// Package portal knows the RNDC web application: its URLs, element ids and
// the login and navigation steps shared by both fulfillment forms.
package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autorndc/internal/browser"
	"autorndc/internal/fields"
	"autorndc/internal/logging"
)

// Default endpoints of the production portal.
const (
	DefaultBaseURL      = "https://rndc.mintransporte.gov.co"
	DefaultLoginURL     = DefaultBaseURL + "/MenuPrincipal/tabid/204/language/es-MX/Default.aspx?returnurl=%2fMenuPrincipal%2ftabid%2f204%2flanguage%2fes-MX%2fDefault.aspx"
	DefaultRemesaURL    = DefaultBaseURL + "/programasRNDC/creardocumento/tabid/69/ctl/CumplirRemesa/mid/396/procesoid/5/default.aspx"
	DefaultManifestURL  = DefaultBaseURL + "/programasRNDC/creardocumento/tabid/69/ctl/CumplirManifiesto/mid/396/procesoid/6/default.aspx"
	CompletionTypeLabel = "Cumplido Normal"
)

// Login page element ids.
const (
	UsernameID   = "dnn_ctr580_FormLogIn_edUsername"
	PasswordID   = "dnn_ctr580_FormLogIn_edPassword"
	LoginID      = "dnn_ctr580_FormLogIn_btIngresar"
	MenuMarkerID = "tddnn_dnnSOLPARTMENU_ctldnnSOLPARTMENU120"
)

// NotIssuedText is the message the remesa form shows for codes that were
// never issued or are already closed.
const NotIssuedText = "no ha sido emitida o ya está cerrada"

// ErrNotIssued marks a remesa the portal will never accept.
var ErrNotIssued = errors.New("remesa not issued or already closed")

// ErrFormNotLoaded is returned when the critical fields never became usable.
var ErrFormNotLoaded = errors.New("form did not load")

// ErrRejected carries a message the form shows right after the code is entered.
var ErrRejected = errors.New("code rejected by form")

// Endpoints groups the URLs the automation visits.
type Endpoints struct {
	BaseURL     string `yaml:"base_url"`
	LoginURL    string `yaml:"login_url"`
	RemesaURL   string `yaml:"remesa_url"`
	ManifestURL string `yaml:"manifest_url"`
}

// DefaultEndpoints returns the production URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		BaseURL:     DefaultBaseURL,
		LoginURL:    DefaultLoginURL,
		RemesaURL:   DefaultRemesaURL,
		ManifestURL: DefaultManifestURL,
	}
}

// Timeouts are the wait windows used against the portal.
type Timeouts struct {
	// Alert is how long to wait for a dialog after saving.
	Alert time.Duration
	// PageReady bounds page loads and the success marker.
	PageReady time.Duration
	// Settle is the pause after entering a code so the form can fetch the document.
	Settle time.Duration
}

// DefaultTimeouts matches the portal's observed latencies.
func DefaultTimeouts() Timeouts {
	return Timeouts{Alert: 3 * time.Second, PageReady: 10 * time.Second, Settle: 500 * time.Millisecond}
}

// Layout describes one fulfillment form.
type Layout struct {
	Kind           fields.Kind
	Prefix         string
	CodeField      string
	MessageField   string
	CompletionType string
	SaveButton     string
	SuccessMarker  string
}

var (
	// RemesaLayout is the CumplirRemesa form.
	RemesaLayout = Layout{
		Kind:           fields.KindRemesa,
		Prefix:         "dnn_ctr396_CumplirRemesa_",
		CodeField:      "CONSECUTIVOREMESA",
		MessageField:   "MENSAJE",
		CompletionType: "NOMTIPOCUMPLIDOREMESA",
		SaveButton:     "btGuardar",
		SuccessMarker:  "dnn_ctr396_CumplirRemesaNew_btNuevo",
	}
	// ManifestLayout is the CumplirManifiesto form.
	ManifestLayout = Layout{
		Kind:           fields.KindManifest,
		Prefix:         "dnn_ctr396_CumplirManifiesto_",
		CodeField:      "NUMMANIFIESTOCARGA",
		MessageField:   "MSGERROR",
		CompletionType: "NOMTIPOCUMPLIDOMANIFIESTO",
		SaveButton:     "btGuardar",
		SuccessMarker:  "dnn_ctr396_CumplirManifiestoNew_btNuevo",
	}
)

// LayoutFor returns the form layout of a document kind.
func LayoutFor(k fields.Kind) Layout {
	if k == fields.KindManifest {
		return ManifestLayout
	}
	return RemesaLayout
}

// ID returns the full element id of a form field suffix.
func (l Layout) ID(suffix string) string { return l.Prefix + suffix }

// Remesa read-only fields.
const (
	LoadedQuantity     = "CANTIDADCARGADA"
	DeliveredQuantity  = "CANTIDADENTREGADA"
	AgreedLoadDate     = "FECHACITAPACTADACARGUE"
	AgreedUnloadDate   = "FECHACITAPACTADADESCARGUE"
	AgreedLoadTime     = "HORACITAPACTADACARGUE"
	AgreedUnloadTime   = "HORACITAPACTADADESCARGUEREMESA"
	RemesaEmissionDate = "FECHAEMISION"
	ManifestIssueDate  = "FECHAEXPEDICIONMANIFIESTO"
)

// criticalRemesaFields must be displayed before a remesa form is usable.
var criticalRemesaFields = []fields.Role{
	fields.RoleUnloadArrivalDate,
	fields.RoleUnloadArrivalTime,
	fields.RoleUnloadDepartureDate,
	fields.RoleUnloadDepartureTime,
}

// Session drives the portal through one browser.
type Session struct {
	Driver    browser.Driver
	Endpoints Endpoints
	Timeouts  Timeouts
	Log       *logging.Logger

	// Sleep is replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewSession wires a session with default timings.
func NewSession(d browser.Driver, ep Endpoints, t Timeouts, log *logging.Logger) *Session {
	if log == nil {
		log = logging.Nop().Get(logging.CategoryBrowser)
	}
	return &Session{Driver: d, Endpoints: ep, Timeouts: t, Log: log, Sleep: Sleep}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep == nil {
		return Sleep(ctx, d)
	}
	return s.Sleep(ctx, d)
}

// Login signs in and waits for the main menu.
func (s *Session) Login(ctx context.Context, user, password string) error {
	timer := logging.StartTimer(s.Log, "login")
	defer timer.Stop()

	if err := s.Driver.Navigate(ctx, s.Endpoints.LoginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if err := s.Driver.WaitPresent(ctx, UsernameID, s.Timeouts.PageReady); err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	if err := s.Driver.Fill(ctx, UsernameID, user); err != nil {
		return fmt.Errorf("username: %w", err)
	}
	if err := s.Driver.Fill(ctx, PasswordID, password); err != nil {
		return fmt.Errorf("password: %w", err)
	}
	if err := s.Driver.Click(ctx, LoginID); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	if err := s.Driver.WaitPresent(ctx, MenuMarkerID, s.Timeouts.PageReady); err != nil {
		return fmt.Errorf("login did not reach main menu: %w", err)
	}
	s.Log.Info("logged in as %s", user)
	return nil
}

func (s *Session) formURL(k fields.Kind) string {
	if k == fields.KindManifest {
		return s.Endpoints.ManifestURL
	}
	return s.Endpoints.RemesaURL
}

// OpenForm clears browser storage and loads a blank form of the given kind.
func (s *Session) OpenForm(ctx context.Context, k fields.Kind) error {
	l := LayoutFor(k)
	if err := s.Driver.ClearLocalState(ctx); err != nil {
		s.Log.Warn("clear local state: %v", err)
	}
	if err := s.Driver.Navigate(ctx, s.formURL(k)); err != nil {
		return fmt.Errorf("open %s form: %w", k, err)
	}
	if err := s.Driver.WaitPresent(ctx, l.ID(l.CodeField), s.Timeouts.PageReady); err != nil {
		return fmt.Errorf("open %s form: %w", k, err)
	}
	return nil
}

// EnterCode types the document code and tabs out so the form fetches it.
// It returns ErrNotIssued or ErrRejected when the form refuses the code.
func (s *Session) EnterCode(ctx context.Context, k fields.Kind, code string) error {
	l := LayoutFor(k)
	id := l.ID(l.CodeField)
	if err := s.Driver.Fill(ctx, id, code); err != nil {
		return fmt.Errorf("enter code: %w", err)
	}
	if err := s.Driver.Blur(ctx, id); err != nil {
		return fmt.Errorf("enter code: %w", err)
	}
	if err := s.sleep(ctx, s.Timeouts.Settle); err != nil {
		return err
	}
	if err := s.Driver.WaitReady(ctx, s.Timeouts.PageReady); err != nil {
		s.Log.Debug("page not idle after code %s: %v", code, err)
	}

	msg, err := s.Driver.Read(ctx, l.ID(l.MessageField))
	if err != nil {
		if errors.Is(err, browser.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("read form message: %w", err)
	}
	msg = strings.TrimSpace(msg)
	switch {
	case msg == "":
		return nil
	case strings.Contains(msg, NotIssuedText):
		return fmt.Errorf("%w: %s", ErrNotIssued, msg)
	case k == fields.KindManifest:
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	// Remesas show informational text in MENSAJE as well.
	s.Log.Debug("form message for %s: %s", code, msg)
	return nil
}

// remesaLoaded reports whether every critical unload field is displayed.
func (s *Session) remesaLoaded(ctx context.Context) bool {
	for _, r := range criticalRemesaFields {
		ok, err := s.Driver.Displayed(ctx, RemesaLayout.ID(r.ID()))
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// VerifyRemesaLoaded checks that the critical unload fields are usable,
// reloading the form and re-entering the code up to attempts times.
func (s *Session) VerifyRemesaLoaded(ctx context.Context, code string, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	for i := 1; i <= attempts; i++ {
		if s.remesaLoaded(ctx) {
			return nil
		}
		s.Log.Warn("remesa %s: form not loaded (attempt %d/%d)", code, i, attempts)
		if i == attempts {
			break
		}
		if err := s.OpenForm(ctx, fields.KindRemesa); err != nil {
			return err
		}
		if err := s.EnterCode(ctx, fields.KindRemesa, code); err != nil {
			return err
		}
		if err := s.sleep(ctx, 2*time.Second); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: remesa %s", ErrFormNotLoaded, code)
}

// SelectCompletion picks "Cumplido Normal" on the form.
func (s *Session) SelectCompletion(ctx context.Context, k fields.Kind) error {
	l := LayoutFor(k)
	if err := s.Driver.SelectText(ctx, l.ID(l.CompletionType), CompletionTypeLabel); err != nil {
		return fmt.Errorf("select completion type: %w", err)
	}
	return nil
}

// ReadField returns the value of a form field by suffix.
func (s *Session) ReadField(ctx context.Context, k fields.Kind, suffix string) (string, error) {
	l := LayoutFor(k)
	v, err := s.Driver.Read(ctx, l.ID(suffix))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

// CopyDeliveredQuantity sets the delivered quantity to the loaded one.
func (s *Session) CopyDeliveredQuantity(ctx context.Context) error {
	loaded, err := s.ReadField(ctx, fields.KindRemesa, LoadedQuantity)
	if err != nil {
		return fmt.Errorf("loaded quantity: %w", err)
	}
	if err := s.Driver.Fill(ctx, RemesaLayout.ID(DeliveredQuantity), loaded); err != nil {
		return fmt.Errorf("delivered quantity: %w", err)
	}
	return nil
}

// ReadRemesaSource collects the agreed appointment values of a loaded remesa.
func (s *Session) ReadRemesaSource(ctx context.Context) fields.RemesaSource {
	read := func(suffix string) string {
		v, err := s.ReadField(ctx, fields.KindRemesa, suffix)
		if err != nil {
			s.Log.Debug("read %s: %v", suffix, err)
			return ""
		}
		return v
	}
	return fields.RemesaSource{
		AgreedLoadDate:   read(AgreedLoadDate),
		AgreedUnloadDate: read(AgreedUnloadDate),
		AgreedLoadTime:   read(AgreedLoadTime),
		AgreedUnloadTime: read(AgreedUnloadTime),
		EmissionDate:     read(RemesaEmissionDate),
	}
}

// EmissionDate reads the remesa's FECHAEMISION.
func (s *Session) EmissionDate(ctx context.Context) (string, error) {
	return s.ReadField(ctx, fields.KindRemesa, RemesaEmissionDate)
}

// WaitIssueDate waits for the manifest issue date to be filled in by the form.
func (s *Session) WaitIssueDate(ctx context.Context) (string, error) {
	v, err := s.Driver.WaitValue(ctx, ManifestLayout.ID(ManifestIssueDate), s.Timeouts.PageReady)
	return strings.TrimSpace(v), err
}

// FillFailure records one field the form refused.
type FillFailure struct {
	Role fields.Role
	Err  error
}

// FillModel writes every assigned role into the form in fill order. Failed
// fields are returned rather than stopping the fill.
func (s *Session) FillModel(ctx context.Context, m fields.Model) []FillFailure {
	l := LayoutFor(m.Kind())
	var failures []FillFailure
	m.Each(func(r fields.Role, v string) {
		if ctx.Err() != nil {
			return
		}
		id := l.ID(r.ID())
		var err error
		if r.IsSelect() {
			if v == "" {
				return
			}
			err = s.Driver.SelectValue(ctx, id, v)
		} else {
			err = s.Driver.Fill(ctx, id, v)
		}
		if err != nil {
			s.Log.Warn("fill %s=%q: %v", r, v, err)
			failures = append(failures, FillFailure{Role: r, Err: err})
		}
	})
	return failures
}

// Save clicks the form's save button.
func (s *Session) Save(ctx context.Context, k fields.Kind) error {
	l := LayoutFor(k)
	id := l.ID(l.SaveButton)
	if err := s.Driver.WaitClickable(ctx, id, s.Timeouts.PageReady); err != nil {
		return fmt.Errorf("save button: %w", err)
	}
	if err := s.Driver.Click(ctx, id); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Result is what the portal showed after a save.
type Result struct {
	Alert     string
	HasAlert  bool
	Succeeded bool
}

// AwaitResult waits for an alert and, when none appears, for the success
// marker. An alert is dismissed before returning.
func (s *Session) AwaitResult(ctx context.Context, k fields.Kind) (Result, error) {
	if s.Driver.AlertPresent(ctx, s.Timeouts.Alert) {
		text, err := s.Driver.DismissAlert(ctx)
		if err != nil && text == "" {
			return Result{}, fmt.Errorf("dismiss alert: %w", err)
		}
		return Result{Alert: strings.TrimSpace(text), HasAlert: true}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	err := s.Driver.WaitPresent(ctx, LayoutFor(k).SuccessMarker, s.Timeouts.PageReady)
	switch {
	case err == nil:
		return Result{Succeeded: true}, nil
	case errors.Is(err, browser.ErrTimeout):
		return Result{}, nil
	}
	return Result{}, err
}
