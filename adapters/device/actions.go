package device

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
	"github.com/zoraidacallejas/talk-to-your-assistant/domain/repositories"
)

const (
	searchURL     = "https://www.google.com/search"
	directionsURL = "http://maps.google.com/maps"
)

// Actions carries out directive side effects by pushing commands to the
// device. It implements every handler the dispatcher needs.
type Actions struct {
	state     *State
	publisher repositories.CommandPublisher
	logger    *zap.Logger
}

// NewActions creates the device action handlers
func NewActions(state *State, publisher repositories.CommandPublisher, logger *zap.Logger) *Actions {
	return &Actions{state: state, publisher: publisher, logger: logger}
}

// OpenMap shows a place, centred on the given coordinates if any
func (a *Actions) OpenMap(ctx context.Context, req repositories.MapRequest) error {
	return a.publish(ctx, entities.DeviceCommand{
		Action: entities.CommandOpenMap,
		URI:    MapURI(req.Place, req.Coordinates),
		Query:  req.Place,
	})
}

// Search runs a web search on the device
func (a *Actions) Search(ctx context.Context, query string) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("empty search query")
	}
	return a.publish(ctx, entities.DeviceCommand{
		Action: entities.CommandWebSearch,
		URI:    searchURL + "?q=" + url.QueryEscape(query),
		Query:  query,
	})
}

// InstalledApps returns the apps last reported by the device
func (a *Actions) InstalledApps(ctx context.Context) ([]entities.App, error) {
	return a.state.Apps(), nil
}

// Launch starts an app by package name
func (a *Actions) Launch(ctx context.Context, app entities.App) error {
	return a.publish(ctx, entities.DeviceCommand{
		Action:  entities.CommandLaunchApp,
		Package: app.Package,
		Query:   app.Label,
	})
}

// BatteryStatus returns the battery reading last reported by the device
func (a *Actions) BatteryStatus(ctx context.Context) (entities.BatteryStatus, error) {
	return a.state.BatteryStatus(ctx)
}

// OpenDirections opens a route in the maps app
func (a *Actions) OpenDirections(ctx context.Context, req repositories.DirectionsRequest) error {
	return a.publish(ctx, entities.DeviceCommand{
		Action: entities.CommandOpenDirections,
		URI:    DirectionsURI(req),
		Query:  req.To,
	})
}

// LastKnownLocation returns the last accepted location fix
func (a *Actions) LastKnownLocation() (entities.Coordinates, bool) {
	return a.state.LastKnownLocation()
}

func (a *Actions) publish(ctx context.Context, cmd entities.DeviceCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.publisher == nil {
		return errors.New("no device connected")
	}
	if err := a.publisher.PublishCommand(cmd); err != nil {
		return fmt.Errorf("failed to publish %s: %w", cmd.Action, err)
	}

	a.logger.Info("Device command published",
		zap.String("action", string(cmd.Action)),
		zap.String("uri", cmd.URI),
		zap.String("package", cmd.Package))
	return nil
}

// MapURI builds a geo URI: geo:<lat>,<lng>?q=<place>, spaces become '+'
func MapURI(place string, at *entities.Coordinates) string {
	lat, lng := "0", "0"
	if at != nil {
		lat, lng = formatCoordinate(at.Latitude), formatCoordinate(at.Longitude)
	}
	return fmt.Sprintf("geo:%s,%s?q=%s", lat, lng, strings.ReplaceAll(strings.TrimSpace(place), " ", "+"))
}

// DirectionsURI builds a maps route URL. The origin is the device location
// when known, the named place otherwise.
func DirectionsURI(req repositories.DirectionsRequest) string {
	from := url.QueryEscape(req.From)
	if req.Origin != nil {
		from = formatCoordinate(req.Origin.Latitude) + "," + formatCoordinate(req.Origin.Longitude)
	}
	return directionsURL + "?saddr=" + from + "&daddr=" + url.QueryEscape(req.To)
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var (
	_ repositories.MapOpener        = (*Actions)(nil)
	_ repositories.WebSearcher      = (*Actions)(nil)
	_ repositories.AppLauncher      = (*Actions)(nil)
	_ repositories.BatteryReader    = (*Actions)(nil)
	_ repositories.DirectionsOpener = (*Actions)(nil)
	_ repositories.LocationProvider = (*Actions)(nil)
)
