package funnel

// Pixel methods for the two event kinds.
const (
	PixelMethodTrack       = "track"
	PixelMethodTrackCustom = "trackCustom"
)

// PixelCommand is one browser pixel call: fbq(method, event, params, options).
type PixelCommand struct {
	Method  string         `json:"method"`
	Event   string         `json:"event"`
	Params  map[string]any `json:"params"`
	Options PixelOptions   `json:"options"`
}

// PixelOptions holds the dedup key of a pixel call.
type PixelOptions struct {
	EventID string `json:"eventID,omitempty"`
}

// Pixel is a browser-side pixel that may still be loading.
type Pixel interface {
	Loaded() bool
	Call(cmd PixelCommand)
}

// NewPixelCommand builds the call for desc, or nil when desc is nil.
func NewPixelCommand(desc *EventDescriptor, eventID string) *PixelCommand {
	if desc == nil {
		return nil
	}
	method := PixelMethodTrack
	if desc.Kind == KindCustom {
		method = PixelMethodTrackCustom
	}
	params := desc.Params
	if params == nil {
		params = map[string]any{}
	}
	return &PixelCommand{
		Method:  method,
		Event:   desc.Name,
		Params:  params,
		Options: PixelOptions{EventID: eventID},
	}
}

// Emitter dispatches descriptors to a pixel.
type Emitter struct {
	pixel Pixel
}

// NewEmitter returns an emitter for pixel, which may be nil.
func NewEmitter(pixel Pixel) *Emitter {
	return &Emitter{pixel: pixel}
}

// Emit sends desc to the pixel and reports whether a call was made. A
// missing or unloaded pixel is skipped silently.
func (e *Emitter) Emit(desc *EventDescriptor, eventID string) bool {
	if e == nil || e.pixel == nil || !e.pixel.Loaded() {
		return false
	}
	cmd := NewPixelCommand(desc, eventID)
	if cmd == nil {
		return false
	}
	e.pixel.Call(*cmd)
	return true
}
