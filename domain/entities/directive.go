package entities

// DirectiveKind names a directive variant. The order of the constants below
// is the order in which directives found in one reply are dispatched.
type DirectiveKind string

const (
	DirectiveMap        DirectiveKind = "map"
	DirectiveSearch     DirectiveKind = "search"
	DirectiveLaunch     DirectiveKind = "launch"
	DirectiveBattery    DirectiveKind = "battery"
	DirectiveDirections DirectiveKind = "directions"
)

// DirectiveOrder is the fixed detection and dispatch order
var DirectiveOrder = []DirectiveKind{
	DirectiveMap,
	DirectiveSearch,
	DirectiveLaunch,
	DirectiveBattery,
	DirectiveDirections,
}

// Directive is a machine-actionable instruction embedded in a dialogue reply.
// The set of implementations is closed.
type Directive interface {
	Kind() DirectiveKind
	isDirective()
}

// MapDirective shows a place on a map. With UseDeviceLocation the map is
// centred on the device's last known coordinates.
type MapDirective struct {
	Place             string `json:"place"`
	UseDeviceLocation bool   `json:"use_device_location"`
}

type SearchDirective struct {
	Query string `json:"query"`
}

type LaunchDirective struct {
	AppName string `json:"app_name"`
}

type BatteryDirective struct{}

// DirectionsDirective asks for a route. An empty From means "from here".
type DirectionsDirective struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
}

func (MapDirective) Kind() DirectiveKind        { return DirectiveMap }
func (SearchDirective) Kind() DirectiveKind     { return DirectiveSearch }
func (LaunchDirective) Kind() DirectiveKind     { return DirectiveLaunch }
func (BatteryDirective) Kind() DirectiveKind    { return DirectiveBattery }
func (DirectionsDirective) Kind() DirectiveKind { return DirectiveDirections }

func (MapDirective) isDirective()        {}
func (SearchDirective) isDirective()     {}
func (LaunchDirective) isDirective()     {}
func (BatteryDirective) isDirective()    {}
func (DirectionsDirective) isDirective() {}

// ParsedReply is derived once from a raw dialogue reply and never modified.
type ParsedReply struct {
	// SpokenText is what gets synthesized for the turn
	SpokenText string
	// Block is the complete embedded block including its delimiters, empty when none was found
	Block string
	// Offset is the byte position of Block in the raw reply, -1 when it could not be removed
	Offset int
	// Payload is the block content between the delimiters
	Payload    string
	Directives []Directive
}

// HasDirective reports whether the reply carried an embedded block
func (p ParsedReply) HasDirective() bool {
	return p.Block != ""
}

// Kinds lists the directive kinds in dispatch order
func (p ParsedReply) Kinds() []DirectiveKind {
	kinds := make([]DirectiveKind, 0, len(p.Directives))
	for _, d := range p.Directives {
		kinds = append(kinds, d.Kind())
	}
	return kinds
}
