package core

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestExtractViewport_PartitionsCameraCommands(t *testing.T) {
	elements := []Element{
		{"type": "rectangle", "id": "r1"},
		{"type": "cameraUpdate", "x": 10.0, "y": 20.0, "width": 1024.0, "height": 768.0},
		{"type": "ellipse", "id": "e1"},
	}

	draw, cam := ExtractViewport(elements)

	if len(draw) != 2 {
		t.Fatalf("Expected 2 draw elements, got %d", len(draw))
	}
	if draw[0].Type() != "rectangle" || draw[1].Type() != "ellipse" {
		t.Errorf("Draw elements out of order: %v", draw)
	}
	if cam == nil {
		t.Fatal("Expected a camera, got nil")
	}
	want := Camera{X: 10, Y: 20, Width: 1024, Height: 768}
	if *cam != want {
		t.Errorf("Camera mismatch: got %+v, want %+v", *cam, want)
	}
}

func TestExtractViewport_ViewportUpdateTag(t *testing.T) {
	_, cam := ExtractViewport([]Element{{"type": "viewportUpdate", "x": 5.0}})
	if cam == nil {
		t.Fatal("Expected a camera for viewportUpdate")
	}
	if cam.X != 5 {
		t.Errorf("Expected x=5, got %v", cam.X)
	}
}

func TestExtractViewport_Defaults(t *testing.T) {
	_, cam := ExtractViewport([]Element{{"type": "cameraUpdate"}})
	if cam == nil {
		t.Fatal("Expected a camera")
	}
	want := Camera{X: 0, Y: 0, Width: 800, Height: 600}
	if *cam != want {
		t.Errorf("Defaults mismatch: got %+v, want %+v", *cam, want)
	}
}

func TestExtractViewport_LastCameraWins(t *testing.T) {
	elements := []Element{
		{"type": "cameraUpdate", "x": 1.0},
		{"type": "rectangle", "id": "r1"},
		{"type": "cameraUpdate", "x": 2.0},
	}

	draw, cam := ExtractViewport(elements)

	if len(draw) != 1 || draw[0].Type() != "rectangle" {
		t.Errorf("Expected only the rectangle, got %v", draw)
	}
	if cam == nil || cam.X != 2 {
		t.Errorf("Expected the last camera command to win, got %+v", cam)
	}
}

func TestExtractViewport_NoCamera(t *testing.T) {
	draw, cam := ExtractViewport([]Element{{"type": "rectangle"}})
	if cam != nil {
		t.Errorf("Expected no camera, got %+v", cam)
	}
	if len(draw) != 1 {
		t.Errorf("Expected 1 draw element, got %d", len(draw))
	}
}

func TestExtractViewport_DoesNotMutateInput(t *testing.T) {
	elements := []Element{
		{"type": "cameraUpdate", "x": 3.0},
		{"type": "rectangle", "id": "r1", "width": 50.0},
	}
	before, err := json.Marshal(elements)
	if err != nil {
		t.Fatal(err)
	}

	ExtractViewport(elements)

	after, err := json.Marshal(elements)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("Input mutated: before %s, after %s", before, after)
	}
}

func TestExtractViewport_JSONNumberFields(t *testing.T) {
	_, cam := ExtractViewport([]Element{{
		"type":  "cameraUpdate",
		"x":     json.Number("12.5"),
		"width": json.Number("bogus"),
	}})
	if cam == nil {
		t.Fatal("Expected a camera")
	}
	if cam.X != 12.5 {
		t.Errorf("Expected x=12.5, got %v", cam.X)
	}
	if cam.Width != DefaultCameraWidth {
		t.Errorf("Expected default width for unparseable field, got %v", cam.Width)
	}
}
