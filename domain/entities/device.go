package entities

import (
	"errors"
	"time"
)

// Coordinates is a latitude/longitude fix
type Coordinates struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// BatteryStatus is the raw battery reading reported by the device
type BatteryStatus struct {
	RawLevel int `json:"raw_level"`
	Scale    int `json:"scale"`
}

// Valid reports whether the reading can be turned into a percentage
func (b BatteryStatus) Valid() bool {
	return b.RawLevel >= 0 && b.Scale > 0
}

// Percent converts the reading to a whole percentage, truncating
func (b BatteryStatus) Percent() int {
	if !b.Valid() {
		return 0
	}
	return int(float64(b.RawLevel) / float64(b.Scale) * 100)
}

// App is an application installed on the device
type App struct {
	Label   string `json:"label"`
	Package string `json:"package"`
}

// Validate validates the app data
func (a App) Validate() error {
	if a.Label == "" {
		return errors.New("label is required")
	}
	if a.Package == "" {
		return errors.New("package is required")
	}
	return nil
}

// CommandAction names a side effect the device has to carry out
type CommandAction string

const (
	CommandOpenMap        CommandAction = "open_map"
	CommandWebSearch      CommandAction = "web_search"
	CommandLaunchApp      CommandAction = "launch_app"
	CommandOpenDirections CommandAction = "open_directions"
)

// DeviceCommand is pushed to the connected device to perform an action
type DeviceCommand struct {
	Action  CommandAction `json:"action"`
	URI     string        `json:"uri,omitempty"`
	Query   string        `json:"query,omitempty"`
	Package string        `json:"package,omitempty"`
}
