package schemas

// -- Browser Persona Schemas --

// Persona encapsulates the properties the browser presents to the chat application.
// The persona is applied once per allocator so the application sees a stable client
// across restarts of the daemon.
type Persona struct {
	UserAgent string   `json:"userAgent" mapstructure:"user_agent" yaml:"user_agent"`
	Languages []string `json:"languages" mapstructure:"languages" yaml:"languages"`
	Width     int64    `json:"width" mapstructure:"width" yaml:"width"`
	Height    int64    `json:"height" mapstructure:"height" yaml:"height"`
	Timezone  string   `json:"timezoneId" mapstructure:"timezone" yaml:"timezone"`
	Locale    string   `json:"locale" mapstructure:"locale" yaml:"locale"`
}

// DefaultPersona provides a fallback persona if none is specified.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36",
	Languages: []string{"en-US", "en"},
	Width:     1366,
	Height:    900,
	Locale:    "en-US",
}

// -- Low-Level Interaction Schemas --

// MouseEventType defines the type of a mouse event.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
)

// MouseButton defines the mouse button being pressed.
type MouseButton string

const (
	ButtonNone MouseButton = "none"
	ButtonLeft MouseButton = "left"
)

// MouseEventData carries everything needed to dispatch a single pointer event.
type MouseEventData struct {
	Type       MouseEventType `json:"type"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Button     MouseButton    `json:"button"`
	Buttons    int64          `json:"buttons"`
	ClickCount int            `json:"clickCount"`
}
