package core

import "encoding/json"

// Camera command type tags. Clients smuggle camera moves inside element
// batches; they are never persisted as drawing data.
const (
	cameraUpdateType   = "cameraUpdate"
	viewportUpdateType = "viewportUpdate"
)

// Defaults applied to camera commands with missing numeric fields.
const (
	DefaultCameraWidth  = 800.0
	DefaultCameraHeight = 600.0
)

// ExtractViewport partitions a batch into drawing elements and an optional
// camera command. The input is not mutated and the relative order of drawing
// elements is preserved. When a batch carries several camera commands, the
// last one wins.
func ExtractViewport(elements []Element) ([]Element, *Camera) {
	draw := make([]Element, 0, len(elements))
	var cam *Camera

	for _, el := range elements {
		switch el.Type() {
		case cameraUpdateType, viewportUpdateType:
			cam = &Camera{
				X:      numberField(el, "x", 0),
				Y:      numberField(el, "y", 0),
				Width:  numberField(el, "width", DefaultCameraWidth),
				Height: numberField(el, "height", DefaultCameraHeight),
			}
		default:
			draw = append(draw, el)
		}
	}

	return draw, cam
}

func numberField(el Element, key string, def float64) float64 {
	switch v := el[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}
