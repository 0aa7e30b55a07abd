// Package contract checks recorded API responses against an OpenAPI 3
// document.
package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"pkt.systems/pslog"
	"pkt.systems/shopprobe/internal/api"
)

// Validator verifies exchanges against a loaded document.
type Validator struct {
	doc    *openapi3.T
	source string
	logger pslog.Base
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger for skipped-route debug lines.
func WithLogger(logger pslog.Base) Option {
	return func(v *Validator) { v.logger = logger }
}

// Load reads an OpenAPI 3 document (yaml or json) from a file path or an
// http(s) URL and validates it.
func Load(ctx context.Context, source string, opts ...Option) (*Validator, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	loader.Context = ctx

	var (
		doc *openapi3.T
		err error
	)
	if u, perr := url.Parse(source); perr == nil && (u.Scheme == "http" || u.Scheme == "https") {
		doc, err = loader.LoadFromURI(u)
	} else {
		path := source
		if abs, aerr := filepath.Abs(path); aerr == nil {
			path = abs
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, fmt.Errorf("read openapi: %w", rerr)
		}
		doc, err = loader.LoadFromDataWithPath(data, &url.URL{Path: filepath.ToSlash(path)})
	}
	if err != nil {
		return nil, fmt.Errorf("load openapi: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document %s: %w", source, err)
	}
	if doc.Paths == nil || len(doc.Paths.Map()) == 0 {
		return nil, fmt.Errorf("openapi document %s describes no paths", source)
	}

	v := &Validator{doc: doc, source: source}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	if v.logger == nil {
		v.logger = pslog.New(os.Stderr)
	}
	v.logger.Debug("contract.loaded", "source", source, "paths", len(doc.Paths.Map()))
	return v, nil
}

// Verify checks every exchange that got a response. Routes, methods and
// statuses the document does not describe are skipped.
func (v *Validator) Verify(ctx context.Context, probe string, exchanges []api.Exchange) error {
	var errs []error
	for _, ex := range exchanges {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !ex.Responded() {
			continue
		}
		if err := v.check(ex); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("contract %s: %w", filepath.Base(v.source), errors.Join(errs...))
}

func (v *Validator) check(ex api.Exchange) error {
	schema := v.responseSchema(ex)
	if schema == nil {
		return nil
	}
	if len(strings.TrimSpace(string(ex.Body))) == 0 {
		return fmt.Errorf("%s %s -> %d: empty body, expected json", ex.Method, ex.Route, ex.Status)
	}
	var body any
	if err := json.Unmarshal(ex.Body, &body); err != nil {
		return fmt.Errorf("%s %s -> %d: body is not json: %w", ex.Method, ex.Route, ex.Status, err)
	}
	if err := schema.VisitJSON(body, openapi3.MultiErrors()); err != nil {
		return fmt.Errorf("%s %s -> %d: %w", ex.Method, ex.Route, ex.Status, err)
	}
	return nil
}

func (v *Validator) responseSchema(ex api.Exchange) *openapi3.Schema {
	item := v.doc.Paths.Find(ex.Route)
	if item == nil {
		v.logger.Debug("contract.skip", "reason", "route", "method", ex.Method, "route", ex.Route)
		return nil
	}
	op := item.GetOperation(ex.Method)
	if op == nil || op.Responses == nil {
		v.logger.Debug("contract.skip", "reason", "method", "method", ex.Method, "route", ex.Route)
		return nil
	}
	ref := op.Responses.Status(ex.Status)
	if ref == nil {
		ref = op.Responses.Default()
	}
	if ref == nil || ref.Value == nil || ref.Value.Content == nil {
		v.logger.Debug("contract.skip", "reason", "status", "method", ex.Method, "route", ex.Route, "status", ex.Status)
		return nil
	}
	media := ref.Value.Content.Get("application/json")
	if media == nil || media.Schema == nil {
		return nil
	}
	return media.Schema.Value
}
