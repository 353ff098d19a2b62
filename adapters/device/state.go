package device

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zoraidacallejas/talk-to-your-assistant/domain/entities"
)

const (
	// DefaultMinDistance is the movement that makes a new fix significant
	DefaultMinDistance = 10.0
	// DefaultMinInterval is the age that makes a new fix significant
	DefaultMinInterval = 2 * time.Second

	earthRadiusMeters = 6371000.0
)

// State keeps what the connected device last reported about itself:
// battery, installed apps and location.
type State struct {
	mu       sync.RWMutex
	battery  *entities.BatteryStatus
	apps     map[string]entities.App // package -> app
	location *entities.Coordinates

	minDistance float64
	minInterval time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewState creates an empty device state with the default location filter
func NewState(logger *zap.Logger) *State {
	return &State{
		apps:        make(map[string]entities.App),
		minDistance: DefaultMinDistance,
		minInterval: DefaultMinInterval,
		now:         time.Now,
		logger:      logger,
	}
}

// UpdateBattery stores a battery reading, invalid readings are kept as is
func (s *State) UpdateBattery(status entities.BatteryStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.battery = &status
}

// BatteryStatus implements repositories.BatteryReader. An unknown level is
// reported as an invalid reading so that nothing gets spoken.
func (s *State) BatteryStatus(ctx context.Context) (entities.BatteryStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.battery == nil {
		return entities.BatteryStatus{RawLevel: -1, Scale: -1}, nil
	}
	return *s.battery, nil
}

// ReplaceApps stores the full list of installed apps
func (s *State) ReplaceApps(apps []entities.App) error {
	next := make(map[string]entities.App, len(apps))
	for _, app := range apps {
		if err := app.Validate(); err != nil {
			return err
		}
		next[app.Package] = app
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps = next
	return nil
}

// Apps returns the installed apps sorted by label
func (s *State) Apps() []entities.App {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]entities.App, 0, len(s.apps))
	for _, app := range s.apps {
		result = append(result, app)
	}
	sort.Slice(result, func(i, j int) bool {
		return strings.ToLower(result[i].Label) < strings.ToLower(result[j].Label)
	})
	return result
}

// UpdateLocation records a fix if it is the first one, or if the device
// moved at least the minimum distance, or if the last one is old enough.
// It reports whether the fix was accepted.
func (s *State) UpdateLocation(fix entities.Coordinates) (bool, error) {
	if math.IsNaN(fix.Latitude) || math.IsNaN(fix.Longitude) ||
		fix.Latitude < -90 || fix.Latitude > 90 || fix.Longitude < -180 || fix.Longitude > 180 {
		return false, errors.New("coordinates out of range")
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.location != nil {
		moved := Distance(*s.location, fix)
		elapsed := fix.Timestamp.Sub(s.location.Timestamp)
		if moved < s.minDistance && elapsed < s.minInterval {
			return false, nil
		}
	}

	s.location = &fix
	s.logger.Debug("Location updated",
		zap.Float64("lat", fix.Latitude),
		zap.Float64("lng", fix.Longitude))
	return true, nil
}

// LastKnownLocation implements repositories.LocationProvider
func (s *State) LastKnownLocation() (entities.Coordinates, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.location == nil {
		return entities.Coordinates{}, false
	}
	return *s.location, true
}

// Distance returns the great circle distance between two fixes in meters
func Distance(a, b entities.Coordinates) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
