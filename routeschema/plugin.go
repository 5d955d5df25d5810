// Package routeschema validates route params, query, body and reply payloads against
// JSON Schemas declared on host routes.
//
// Schemas are compiled once, when the host becomes ready, and kept in a side table
// keyed by route identity. Per request, params, query and body are checked in that
// order before the handler runs; the first failure rejects the request with status 400
// and a body equal to the formatted violation text. The reply payload is checked before
// serialization. Successful validation may coerce types, fill defaults and strip
// undeclared properties; the handler and the client see the rewritten values.
//
//	app := host.New(host.Options{})
//	if err := app.Register(routeschema.New(routeschema.Options{})); err != nil {
//		return err
//	}
//	app.Route(host.Route{
//		URL:    "/users/{id}",
//		Schema: &host.RouteSchema{Params: idSchema},
//		Handler: getUser,
//	})
//	if err := app.Ready(); err != nil { // malformed schemas fail here
//		return err
//	}
package routeschema

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/masnyjimmy/qvalidate/host"
	"github.com/masnyjimmy/qvalidate/schema"
)

const (
	// Name is the plugin name reported to the host.
	Name = "routeschema"

	// DecorationName is the host decoration holding the *schema.Engine.
	DecorationName = "validator"

	// SettingName is the host setting read as the environment options layer. It may
	// hold a schema.Options or *schema.Options.
	SettingName = "validator"

	minHostVersion = ">=0.1.0"
)

// Failure describes a rejected request or reply.
type Failure struct {
	ID         string             `json:"id"`
	RequestID  string             `json:"requestId"`
	Route      string             `json:"route"`
	Part       Part               `json:"part"`
	Message    string             `json:"message"`
	Violations []schema.Violation `json:"violations"`
	Time       time.Time          `json:"time"`
}

type Options struct {
	// Schema is the explicit options layer; it wins over the host setting, which wins
	// over schema.Defaults.
	Schema schema.Options

	// Logger defaults to the host logger.
	Logger *zap.Logger

	// OnFailure, when set, is called for every rejected request or reply.
	OnFailure func(ctx context.Context, f Failure)
}

type Plugin struct {
	options Options
	engine  *schema.Engine
}

func New(opt Options) *Plugin {
	return &Plugin{options: opt}
}

func (p *Plugin) Name() string {
	return Name
}

func (p *Plugin) MinHostVersion() string {
	return minHostVersion
}

// Engine returns the engine created by the last Register call, or nil.
func (p *Plugin) Engine() *schema.Engine {
	return p.engine
}

func environment(app *host.App) (schema.Options, error) {
	v, ok := app.Setting(SettingName)
	if !ok || v == nil {
		return schema.Options{}, nil
	}

	switch opt := v.(type) {
	case schema.Options:
		return opt, nil
	case *schema.Options:
		if opt == nil {
			return schema.Options{}, nil
		}
		return *opt, nil
	default:
		return schema.Options{}, fmt.Errorf("setting %q has unexpected type %T", SettingName, v)
	}
}

// Register creates the engine for app and attaches the three lifecycle hooks. Each
// registration gets its own engine and route table.
func (p *Plugin) Register(app *host.App) error {
	env, err := environment(app)
	if err != nil {
		return err
	}

	opt, err := schema.Resolve(env, p.options.Schema)
	if err != nil {
		return err
	}

	engine, err := schema.New(opt)
	if err != nil {
		return err
	}

	logger := p.options.Logger
	if logger == nil {
		logger = app.Logger()
	}

	h := &hooks{
		engine:    engine,
		registry:  newRegistry(),
		logger:    logger.Named(Name),
		onFailure: p.options.OnFailure,
	}

	if err := app.OnRoute(h.onRoute); err != nil {
		return err
	}
	if err := app.BeforeHandler(h.beforeHandler); err != nil {
		return err
	}
	if err := app.BeforeSerialize(h.beforeSerialize); err != nil {
		return err
	}
	if err := app.Decorate(DecorationName, engine); err != nil {
		return err
	}

	p.engine = engine
	return nil
}

type hooks struct {
	engine    *schema.Engine
	registry  *registry
	logger    *zap.Logger
	onFailure func(ctx context.Context, f Failure)
}

func (h *hooks) onRoute(route *host.Route) error {
	if err := h.registry.compile(h.engine, route); err != nil {
		return err
	}
	if h.registry.lookup(route) != nil {
		h.logger.Debug("route schemas compiled", zap.String("route", route.ID()))
	}
	return nil
}

// beforeHandler checks params, then query, then body; the first failure wins.
func (h *hooks) beforeHandler(req *host.Request, _ *host.Reply) error {
	v := h.registry.lookup(req.Route)
	if v == nil {
		return nil
	}

	if v.params != nil {
		out, err := h.check(req, PartParams, v.params, req.Params)
		if err != nil {
			return err
		}
		req.Params = asObject(out, req.Params)
	}

	if v.query != nil {
		out, err := h.check(req, PartQuery, v.query, req.Query)
		if err != nil {
			return err
		}
		req.Query = asObject(out, req.Query)
	}

	if v.body != nil {
		out, err := h.check(req, PartBody, v.body, req.Body)
		if err != nil {
			return err
		}
		req.Body = out
	}

	return nil
}

func (h *hooks) beforeSerialize(req *host.Request, rep *host.Reply) error {
	v := h.registry.lookup(rep.Route)
	if v == nil || v.reply == nil || !rep.Sent() {
		return nil
	}

	out, err := h.check(req, PartReply, v.reply, rep.Payload)
	if err != nil {
		rep.Payload = nil
		return err
	}
	rep.Payload = out
	return nil
}

func asObject(v any, fallback map[string]any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return fallback
}

func (h *hooks) check(req *host.Request, part Part, v *schema.Validator, value any) (any, error) {
	out, err := v.Validate(value)
	if err == nil {
		return out, nil
	}

	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		return nil, err
	}

	failure := &Error{Part: part, Route: req.Route.ID(), Err: verr}
	h.report(req, failure)
	return nil, failure
}

func (h *hooks) report(req *host.Request, failure *Error) {
	h.logger.Warn("validation failed",
		zap.String("request_id", req.ID),
		zap.String("route", failure.Route),
		zap.String("part", string(failure.Part)),
		zap.Any("violations", failure.Violations()))

	if h.onFailure == nil {
		return
	}

	h.onFailure(req.Context(), Failure{
		ID:         uuid.NewString(),
		RequestID:  req.ID,
		Route:      failure.Route,
		Part:       failure.Part,
		Message:    failure.Error(),
		Violations: failure.Violations(),
		Time:       time.Now().UTC(),
	})
}
