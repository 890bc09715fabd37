package imaging

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/andresmejia3/goniometer/internal/pose"
)

var (
	keypointColor = color.RGBA{255, 20, 147, 0} // #FF1493
	panelFill     = color.RGBA{255, 255, 255, 0}
	panelBorder   = color.RGBA{128, 128, 128, 0}
	textColor     = color.RGBA{0, 0, 0, 0}
)

const (
	lineThickness  = 4
	keypointRadius = 6
	labelFont      = gocv.FontHersheySimplex
	labelScale     = 0.8
	labelThickness = 2
	labelOrigin    = 30 // px from the top-left corner
	labelPitch     = 30 // px between label rows
)

func edgeColor(c pose.EdgeColor) color.RGBA {
	switch c {
	case pose.Magenta:
		return color.RGBA{255, 0, 255, 0}
	case pose.Cyan:
		return color.RGBA{0, 255, 255, 0}
	case pose.Yellow:
		return color.RGBA{255, 255, 0, 0}
	}
	return color.RGBA{255, 255, 255, 0}
}

// Label is the overlay text for one measurement. Hershey fonts have no
// degree sign.
func Label(m pose.Measurement) string {
	if !m.OK() {
		return fmt.Sprintf("%s: n/a", m.Joint)
	}
	return fmt.Sprintf("%s: %.2f deg", m.Joint, pose.Round2(m.Degrees))
}

func pt(p pose.Point) image.Point {
	return image.Pt(int(p.X+0.5), int(p.Y+0.5))
}

// Draw overlays the skeleton and one label per measurement onto a copy of
// the display rendition. The caller owns the returned Mat.
func (f *Frame) Draw(kps *pose.FilteredKeypoints, angles []pose.Measurement) gocv.Mat {
	canvas := f.display.Clone()

	for _, e := range kps.Edges {
		gocv.Line(&canvas, pt(e.Start), pt(e.End), edgeColor(e.Color), lineThickness)
	}
	for _, p := range kps.Points {
		gocv.Circle(&canvas, pt(p), keypointRadius, keypointColor, -1)
	}

	for i, m := range angles {
		text := Label(m)
		size := gocv.GetTextSize(text, labelFont, labelScale, labelThickness)
		y := labelOrigin + i*labelPitch
		box := image.Rect(labelOrigin-6, y-size.Y/2-6, labelOrigin+size.X+6, y+size.Y/2+6)
		gocv.Rectangle(&canvas, box, panelFill, -1)
		gocv.Rectangle(&canvas, box, panelBorder, 1)
		gocv.PutText(&canvas, text, image.Pt(labelOrigin, y+size.Y/2), labelFont, labelScale, textColor, labelThickness)
	}
	return canvas
}

// WriteAnnotated draws the overlay and writes it to path; the format follows
// the file extension.
func (f *Frame) WriteAnnotated(path string, kps *pose.FilteredKeypoints, angles []pose.Measurement) error {
	canvas := f.Draw(kps, angles)
	defer canvas.Close()

	if ok := gocv.IMWrite(path, canvas); !ok {
		return fmt.Errorf("failed to write annotated image %s", path)
	}
	return nil
}
