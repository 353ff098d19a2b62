package directive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
	"github.com/zoraidacallejas/talk-to-your-assistant/internal/metrics"
)

const defaultActionTimeout = 10 * time.Second

// Speaker synthesizes feedback for the current turn
type Speaker interface {
	Speak(ctx context.Context, text string, id entities.UtteranceID, mode entities.QueueMode) error
}

// Handlers are the device actions a directive can trigger. Nil handlers are
// treated as unavailable and reported as failures.
type Handlers struct {
	Maps       repositories.MapOpener
	Search     repositories.WebSearcher
	Apps       repositories.AppLauncher
	Battery    repositories.BatteryReader
	Directions repositories.DirectionsOpener
	Location   repositories.LocationProvider
}

// Outcome is the result of dispatching one directive
type Outcome struct {
	Kind entities.DirectiveKind `json:"kind"`
	// Status is one of "ok", "not_found", "silent" or "failed"
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

var errHandlerUnavailable = errors.New("handler not configured")

// Dispatcher routes parsed directives to their handlers
type Dispatcher struct {
	speaker       Speaker
	handlers      Handlers
	actionTimeout time.Duration
	logger        *zap.Logger
}

// NewDispatcher creates a dispatcher. A zero actionTimeout uses the default.
func NewDispatcher(speaker Speaker, handlers Handlers, actionTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	if actionTimeout <= 0 {
		actionTimeout = defaultActionTimeout
	}
	return &Dispatcher{
		speaker:       speaker,
		handlers:      handlers,
		actionTimeout: actionTimeout,
		logger:        logger,
	}
}

// Dispatch runs every directive of the reply in order. A failing directive
// never prevents the following ones from running and nothing is returned as
// an error.
func (d *Dispatcher) Dispatch(ctx context.Context, reply entities.ParsedReply) []Outcome {
	outcomes := make([]Outcome, 0, len(reply.Directives))
	for _, directive := range reply.Directives {
		outcome := d.dispatchOne(ctx, reply, directive)
		metrics.DirectivesTotal.WithLabelValues(string(outcome.Kind), outcome.Status).Inc()
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (d *Dispatcher) dispatchOne(ctx context.Context, reply entities.ParsedReply, directive entities.Directive) (outcome Outcome) {
	outcome = Outcome{Kind: directive.Kind(), Status: "ok"}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Directive handler panicked",
				zap.String("kind", string(directive.Kind())),
				zap.Any("panic", r))
			outcome.Status = "failed"
			outcome.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	var err error
	switch dir := directive.(type) {
	case entities.MapDirective:
		err = d.openMap(ctx, reply, dir)
	case entities.SearchDirective:
		err = d.search(ctx, reply, dir)
	case entities.LaunchDirective:
		outcome.Status, err = d.launch(ctx, reply, dir)
	case entities.BatteryDirective:
		outcome.Status, err = d.battery(ctx)
	case entities.DirectionsDirective:
		err = d.directions(ctx, reply, dir)
	default:
		err = fmt.Errorf("unknown directive %T", directive)
	}

	if err != nil {
		d.logger.Error("Directive failed",
			zap.String("kind", string(directive.Kind())),
			zap.Error(err))
		outcome.Status = "failed"
		outcome.Error = err.Error()
	}
	return outcome
}

// acknowledge speaks the turn's text before the side effect runs
func (d *Dispatcher) acknowledge(ctx context.Context, reply entities.ParsedReply) {
	d.say(ctx, StripMarkup(reply.SpokenText))
}

func (d *Dispatcher) say(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if err := d.speaker.Speak(ctx, text, entities.PromptInfo, entities.QueueFlush); err != nil {
		d.logger.Warn("Failed to speak directive feedback", zap.String("text", text), zap.Error(err))
	}
}

func (d *Dispatcher) actionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.actionTimeout)
}

func (d *Dispatcher) openMap(ctx context.Context, reply entities.ParsedReply, dir entities.MapDirective) error {
	d.acknowledge(ctx, reply)
	if d.handlers.Maps == nil {
		return errHandlerUnavailable
	}

	req := repositories.MapRequest{Place: dir.Place}
	if dir.UseDeviceLocation {
		if loc, ok := d.lastKnownLocation(); ok {
			req.Coordinates = &loc
		} else {
			d.logger.Warn("Device location unknown, opening map without coordinates", zap.String("place", dir.Place))
		}
	}

	actx, cancel := d.actionContext(ctx)
	defer cancel()
	if err := d.handlers.Maps.OpenMap(actx, req); err != nil {
		return fmt.Errorf("map query for %q: %w", dir.Place, err)
	}
	return nil
}

func (d *Dispatcher) search(ctx context.Context, reply entities.ParsedReply, dir entities.SearchDirective) error {
	d.acknowledge(ctx, reply)
	if d.handlers.Search == nil {
		return errHandlerUnavailable
	}

	actx, cancel := d.actionContext(ctx)
	defer cancel()
	if err := d.handlers.Search.Search(actx, dir.Query); err != nil {
		return fmt.Errorf("search for %q: %w", dir.Query, err)
	}
	return nil
}

func (d *Dispatcher) launch(ctx context.Context, reply entities.ParsedReply, dir entities.LaunchDirective) (string, error) {
	if d.handlers.Apps == nil {
		return "failed", errHandlerUnavailable
	}

	actx, cancel := d.actionContext(ctx)
	defer cancel()

	apps, err := d.handlers.Apps.InstalledApps(actx)
	if err != nil {
		return "failed", fmt.Errorf("list installed apps: %w", err)
	}

	app, found := FindApp(apps, dir.AppName)
	if !found {
		d.logger.Info("Requested app is not installed", zap.String("app", dir.AppName))
		d.say(ctx, domain.MessageAppNotFound+dir.AppName)
		return "not_found", nil
	}

	d.acknowledge(ctx, reply)
	if err := d.handlers.Apps.Launch(actx, app); err != nil {
		return "failed", fmt.Errorf("launch %s: %w", app.Package, err)
	}
	return "ok", nil
}

// FindApp matches an installed app by display name, ignoring case and
// surrounding whitespace. There is no fuzzy matching.
func FindApp(apps []entities.App, name string) (entities.App, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, app := range apps {
		if strings.ToLower(strings.TrimSpace(app.Label)) == want {
			return app, true
		}
	}
	return entities.App{}, false
}

// battery speaks only the level. Invalid readings produce no output at all.
func (d *Dispatcher) battery(ctx context.Context) (string, error) {
	if d.handlers.Battery == nil {
		return "failed", errHandlerUnavailable
	}

	actx, cancel := d.actionContext(ctx)
	defer cancel()

	status, err := d.handlers.Battery.BatteryStatus(actx)
	if err != nil {
		return "failed", fmt.Errorf("read battery level: %w", err)
	}
	if !status.Valid() {
		d.logger.Debug("Ignoring invalid battery reading",
			zap.Int("raw_level", status.RawLevel),
			zap.Int("scale", status.Scale))
		return "silent", nil
	}

	d.say(ctx, fmt.Sprintf(domain.MessageBatteryLevel, status.Percent()))
	return "ok", nil
}

func (d *Dispatcher) directions(ctx context.Context, reply entities.ParsedReply, dir entities.DirectionsDirective) error {
	d.acknowledge(ctx, reply)
	if d.handlers.Directions == nil {
		return errHandlerUnavailable
	}

	req := repositories.DirectionsRequest{From: dir.From, To: dir.To}
	if strings.TrimSpace(dir.From) == "" {
		if loc, ok := d.lastKnownLocation(); ok {
			req.Origin = &loc
		} else {
			d.logger.Warn("Device location unknown, directions without origin", zap.String("to", dir.To))
		}
	}

	actx, cancel := d.actionContext(ctx)
	defer cancel()
	if err := d.handlers.Directions.OpenDirections(actx, req); err != nil {
		return fmt.Errorf("directions to %q: %w", dir.To, err)
	}
	return nil
}

func (d *Dispatcher) lastKnownLocation() (entities.Coordinates, bool) {
	if d.handlers.Location == nil {
		return entities.Coordinates{}, false
	}
	return d.handlers.Location.LastKnownLocation()
}
