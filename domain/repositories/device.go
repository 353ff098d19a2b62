package repositories

import (
	"context"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
)

// LocationProvider exposes the last location pushed by the device
type LocationProvider interface {
	LastKnownLocation() (entities.Coordinates, bool)
}

// MapRequest opens a map on Place, centred on Coordinates when known
type MapRequest struct {
	Place       string
	Coordinates *entities.Coordinates
}

// DirectionsRequest opens a route. Origin takes precedence over From when set.
type DirectionsRequest struct {
	From   string
	Origin *entities.Coordinates
	To     string
}

type MapOpener interface {
	OpenMap(ctx context.Context, req MapRequest) error
}

type WebSearcher interface {
	Search(ctx context.Context, query string) error
}

type AppLauncher interface {
	InstalledApps(ctx context.Context) ([]entities.App, error)
	Launch(ctx context.Context, app entities.App) error
}

type BatteryReader interface {
	BatteryStatus(ctx context.Context) (entities.BatteryStatus, error)
}

type DirectionsOpener interface {
	OpenDirections(ctx context.Context, req DirectionsRequest) error
}

// CommandPublisher delivers a command to the connected device
type CommandPublisher interface {
	PublishCommand(cmd entities.DeviceCommand) error
}

// ConnectivityChecker reports whether the network is reachable
type ConnectivityChecker interface {
	Connected(ctx context.Context) bool
}
