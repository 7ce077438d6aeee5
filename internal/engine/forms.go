package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"autorndc/internal/browser"
	"autorndc/internal/classify"
	"autorndc/internal/correct"
	"autorndc/internal/eventlog"
	"autorndc/internal/fields"
	"autorndc/internal/portal"
)

// DefaultFormLoadAttempts is how often a remesa form is reloaded before the
// document is skipped.
const DefaultFormLoadAttempts = 3

func submit(ctx context.Context, s *portal.Session, k fields.Kind) (portal.Result, error) {
	if err := s.Save(ctx, k); err != nil {
		return portal.Result{}, err
	}
	return s.AwaitResult(ctx, k)
}

// note logs an event log write failure. The document goes on without the row.
func (e *Env) note(err error) {
	if err != nil {
		e.Log.Warn("event log: %v", err)
	}
}

func (e *Env) diagnostics(code string, diags []fields.Diagnostic) {
	for _, d := range diags {
		e.Log.Warn("%s: %s", code, d.Message)
		e.note(e.Events.Info(code, d.Message, eventlog.Extra("diagnostico", d.Code)))
	}
}

// fill writes m into the form and records the fields the portal refused.
// The save still goes ahead: the portal's alert names whatever is missing.
func (e *Env) fill(ctx context.Context, code string, m fields.Model) {
	failed := e.Session.FillModel(ctx, m)
	if len(failed) == 0 {
		return
	}
	ids := make([]string, 0, len(failed))
	for _, f := range failed {
		ids = append(ids, f.Role.ID())
	}
	msg := "Campos no diligenciados: " + strings.Join(ids, ", ")
	e.Log.Warn("%s: %s", code, msg)
	e.note(e.Events.Info(code, msg, eventlog.Extra("campos_fallidos", strings.Join(ids, ","))))
}

// RemesaForm fills CumplirRemesa.
type RemesaForm struct {
	env          Env
	opts         correct.Options
	loadAttempts int
}

// NewRemesaForm returns the remesa form. attempts bounds form reloads.
func NewRemesaForm(env Env, opts correct.Options, attempts int) *RemesaForm {
	env.defaults(fields.KindRemesa)
	if attempts < 1 {
		attempts = DefaultFormLoadAttempts
	}
	return &RemesaForm{env: env, opts: opts, loadAttempts: attempts}
}

func (f *RemesaForm) Kind() fields.Kind { return fields.KindRemesa }

func (f *RemesaForm) Fill(ctx context.Context, doc *Document) error {
	s := f.env.Session
	if err := s.OpenForm(ctx, fields.KindRemesa); err != nil {
		return err
	}
	if err := s.EnterCode(ctx, fields.KindRemesa, doc.Code); err != nil {
		switch {
		case errors.Is(err, portal.ErrNotIssued):
			return &Stop{Reason: "remesa no emitida o ya cerrada", Mark: true, Err: err}
		case errors.Is(err, portal.ErrRejected):
			return &Stop{Reason: "código rechazado", Err: err}
		}
		return err
	}
	if err := s.VerifyRemesaLoaded(ctx, doc.Code, f.loadAttempts); err != nil {
		if errors.Is(err, portal.ErrFormNotLoaded) {
			return &Stop{Reason: "formulario no cargó", Err: err}
		}
		return err
	}
	if err := s.SelectCompletion(ctx, fields.KindRemesa); err != nil {
		return err
	}
	if err := s.CopyDeliveredQuantity(ctx); err != nil {
		return err
	}

	src := s.ReadRemesaSource(ctx)
	m, diags, err := fields.DeriveRemesa(src, f.env.Now())
	f.env.diagnostics(doc.Code, diags)
	if err != nil {
		if errors.Is(err, fields.ErrFutureUnloadDate) {
			return &Stop{Reason: "fecha de descargue futura", Err: err}
		}
		return &Stop{Reason: "datos inválidos", Err: err}
	}
	doc.Model = m
	f.env.fill(ctx, doc.Code, m)
	return ctx.Err()
}

func (f *RemesaForm) Submit(ctx context.Context, doc *Document) (portal.Result, error) {
	return submit(ctx, f.env.Session, fields.KindRemesa)
}

// Correct re-reads the emission date, applies the correction and rewrites
// every field.
func (f *RemesaForm) Correct(ctx context.Context, doc *Document, code classify.Code) error {
	emission, err := f.env.Session.EmissionDate(ctx)
	if err != nil {
		if !errors.Is(err, browser.ErrNotFound) && !errors.Is(err, browser.ErrTimeout) {
			return err
		}
		f.env.Log.Warn("%s: emission date unavailable: %v", doc.Code, err)
	}
	revised, err := correct.Remesa(code, doc.Model, correct.Context{EmissionDate: emission}, f.opts)
	if err != nil {
		return &Stop{Reason: fmt.Sprintf("no se pudo corregir %s", code), Err: err}
	}
	doc.Model = revised
	f.env.fill(ctx, doc.Code, revised)
	return ctx.Err()
}

// ManifestForm fills CumplirManifiesto.
type ManifestForm struct {
	env  Env
	opts correct.Options
}

// NewManifestForm returns the manifest form.
func NewManifestForm(env Env, opts correct.Options) *ManifestForm {
	env.defaults(fields.KindManifest)
	return &ManifestForm{env: env, opts: opts}
}

func (f *ManifestForm) Kind() fields.Kind { return fields.KindManifest }

// load opens a fresh form for the code and writes the model with the
// current surcharge.
func (f *ManifestForm) load(ctx context.Context, doc *Document) error {
	s := f.env.Session
	if err := s.OpenForm(ctx, fields.KindManifest); err != nil {
		return err
	}
	if err := s.EnterCode(ctx, fields.KindManifest, doc.Code); err != nil {
		if errors.Is(err, portal.ErrRejected) || errors.Is(err, portal.ErrNotIssued) {
			return &Stop{Reason: "error del sistema", Err: err}
		}
		return err
	}
	if err := s.SelectCompletion(ctx, fields.KindManifest); err != nil {
		return err
	}

	issue, err := s.WaitIssueDate(ctx)
	if err != nil && !errors.Is(err, browser.ErrTimeout) {
		return err
	}
	m, diags := fields.DeriveManifest(issue, f.env.Now())
	f.env.diagnostics(doc.Code, diags)
	m = correct.WithSurcharge(m, doc.State.Surcharge, f.opts)
	doc.Model = m

	f.env.fill(ctx, doc.Code, m)
	if doc.State.Surcharge > 0 {
		if err := s.Driver.Blur(ctx, portal.ManifestLayout.ID(fields.RoleAdditionalFreight.ID())); err != nil {
			f.env.Log.Debug("blur freight: %v", err)
		}
	}
	return ctx.Err()
}

func (f *ManifestForm) Fill(ctx context.Context, doc *Document) error {
	return f.load(ctx, doc)
}

func (f *ManifestForm) Submit(ctx context.Context, doc *Document) (portal.Result, error) {
	return submit(ctx, f.env.Session, fields.KindManifest)
}

// Correct escalates the surcharge and refills the form from scratch.
func (f *ManifestForm) Correct(ctx context.Context, doc *Document, code classify.Code) error {
	_, next, err := correct.Manifest(code, doc.Model, doc.State.Surcharge, f.opts)
	if err != nil {
		return &Stop{Reason: fmt.Sprintf("no se pudo corregir %s", code), Err: err}
	}
	doc.State.Surcharge = next
	return f.load(ctx, doc)
}
