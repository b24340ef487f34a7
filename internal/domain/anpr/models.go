package anpr

import (
	"time"

	"github.com/google/uuid"
)

// Mode selects what a confirmed plate does: get written to the registry or
// get checked against it.
type Mode string

const (
	ModeRegister Mode = "register"
	ModeAlert    Mode = "alert"
)

func (m Mode) Valid() bool {
	return m == ModeRegister || m == ModeAlert
}

// Polygon is the warped bounding quadrilateral reported by the engine:
// four corners as x0,y0,x1,y1,x2,y2,x3,y3 in frame pixels.
type Polygon [8]float64

// Point is a pixel coordinate on the frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Corner returns the i-th corner (0..3).
func (p Polygon) Corner(i int) Point {
	return Point{X: p[2*i], Y: p[2*i+1]}
}

// PlateObservation is one detection of one frame as reported by the engine.
type PlateObservation struct {
	RawText string  `json:"text"`
	Polygon Polygon `json:"warped_box"`
	// NoBox is set when the engine gave no usable quadrilateral; the text
	// still counts toward confirmation but nothing is drawn.
	NoBox bool `json:"no_box,omitempty"`
}

// Annotation is what the renderer draws for an accepted observation.
type Annotation struct {
	Plate   string  `json:"plate"`
	Polygon Polygon `json:"warped_box"`
	// LabelAt is where the plate text goes, offset up-left of the first corner.
	LabelAt Point `json:"label_at"`
	// Box is the axis-aligned rectangle from corner 0 to corner 2.
	BoxMin Point `json:"box_min"`
	BoxMax Point `json:"box_max"`
}

func NewAnnotation(plate string, poly Polygon) Annotation {
	c0 := poly.Corner(0)
	return Annotation{
		Plate:   plate,
		Polygon: poly,
		LabelAt: Point{X: c0.X - 20, Y: c0.Y - 20},
		BoxMin:  c0,
		BoxMax:  poly.Corner(2),
	}
}

// Confirmation is raised when a plate reaches the required repeat count
// inside the current history window.
type Confirmation struct {
	ID         uuid.UUID `json:"id"`
	Plate      string    `json:"plate"`
	Mode       Mode      `json:"mode"`
	Frame      uint64    `json:"frame"`
	Registered bool      `json:"registered,omitempty"`
	Hit        bool      `json:"hit,omitempty"`
	Polygon    Polygon   `json:"warped_box"`
	At         time.Time `json:"at"`
}

// FrameInput is one frame's recognition outcome handed to the session.
// Err is set when the engine failed for this frame.
type FrameInput struct {
	Seq          uint64
	Observations []PlateObservation
	Err          error
}

// FrameOutcome is the per-frame result the renderer and sinks consume.
type FrameOutcome struct {
	Seq           uint64         `json:"seq"`
	Annotations   []Annotation   `json:"annotations"`
	Confirmations []Confirmation `json:"confirmations"`
	Alert         bool           `json:"alert"`
	Opacity       float64        `json:"opacity"`
	Truncated     bool           `json:"truncated"`
	Skipped       bool           `json:"skipped"`
}

// DeliveryStats counts confirmations forwarded to an external system.
type DeliveryStats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
}
