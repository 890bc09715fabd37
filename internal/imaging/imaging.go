// Package imaging decodes images for the pose model and draws the measured
// skeleton back onto them.
package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/andresmejia3/goniometer/internal/pose"
)

// Source opens image files and prepares the two square renditions the
// pipeline needs: a small one for the model and a large one for geometry
// and drawing.
type Source struct {
	InputSize   int
	DisplaySize int
}

// Frame is one decoded image. It must be closed to free the OpenCV buffer.
type Frame struct {
	input   pose.Image
	display gocv.Mat // BGR, DisplaySize x DisplaySize
}

// Open decodes path. Only the display rendition is kept as a Mat; the model
// input is copied out as RGB bytes.
func (s Source) Open(path string) (*Frame, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return nil, fmt.Errorf("failed to decode image %s", path)
	}
	defer img.Close()

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(img, &rgb, gocv.ColorBGRToRGB)

	input := ResizeWithPad(rgb, s.InputSize)
	defer input.Close()

	return &Frame{
		input:   pose.Image{Size: s.InputSize, Pix: input.ToBytes()},
		display: ResizeWithPad(img, s.DisplaySize),
	}, nil
}

// ModelInput is the padded RGB tensor handed to the estimator.
func (f *Frame) ModelInput() pose.Image {
	return f.input
}

// Size returns the display rendition's height and width in pixels.
func (f *Frame) Size() (height, width int) {
	return f.display.Rows(), f.display.Cols()
}

// Close releases the display Mat.
func (f *Frame) Close() error {
	return f.display.Close()
}

// padGeometry computes the scaled size and the top/left padding that fit a
// w x h image into a size x size square without changing its aspect ratio.
func padGeometry(w, h, size int) (nw, nh, top, left int) {
	ratio := math.Max(float64(w)/float64(size), float64(h)/float64(size))
	fw, fh := float64(w)/ratio, float64(h)/ratio

	nw = max(1, min(size, int(math.Floor(fw))))
	nh = max(1, min(size, int(math.Floor(fh))))
	top = max(0, int(math.Floor((float64(size)-fh)/2)))
	left = max(0, int(math.Floor((float64(size)-fw)/2)))
	return nw, nh, top, left
}

// ResizeWithPad scales src to fit a size x size square and pads the rest
// with black, centering the image. The caller owns the returned Mat.
func ResizeWithPad(src gocv.Mat, size int) gocv.Mat {
	nw, nh, top, left := padGeometry(src.Cols(), src.Rows(), size)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(nw, nh), 0, 0, gocv.InterpolationLinear)

	out := gocv.NewMat()
	gocv.CopyMakeBorder(resized, &out, top, size-nh-top, left, size-nw-left,
		gocv.BorderConstant, color.RGBA{0, 0, 0, 0})
	return out
}
