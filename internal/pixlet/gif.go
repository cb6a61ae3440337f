package pixlet

import (
	"fmt"
	"image"
	"image/gif"
	"os"
	"time"

	"golang.org/x/image/draw"

	"github.com/coreman2200/funtimes-arcaluminis/internal/frame"
	"github.com/coreman2200/funtimes-arcaluminis/internal/scene"
)

// LoadScene decodes a GIF into a scene. Frames are composited onto the full
// logical screen so partial GIF frames come out complete.
func LoadScene(path, name string) (scene.Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return scene.Scene{}, err
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return scene.Scene{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return scene.New(name, Frames(g)), nil
}

// Frames flattens g into display frames. A GIF without a loop extension is
// shown once; LoopCount 0 loops forever.
func Frames(g *gif.GIF) []*frame.Frame {
	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() && len(g.Image) > 0 {
		bounds = g.Image[0].Bounds()
	}
	canvas := image.NewRGBA(bounds)
	loop := g.LoopCount >= 0
	loopCount := max(g.LoopCount, 0)

	frames := make([]*frame.Frame, 0, len(g.Image))
	for i, p := range g.Image {
		disposal := byte(gif.DisposalNone)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		var saved *image.RGBA
		if disposal == gif.DisposalPrevious {
			saved = image.NewRGBA(bounds)
			draw.Draw(saved, bounds, canvas, bounds.Min, draw.Src)
		}

		draw.Draw(canvas, p.Bounds(), p, p.Bounds().Min, draw.Over)

		d := frame.DefaultDuration
		if i < len(g.Delay) && g.Delay[i] > 0 {
			d = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}
		frames = append(frames, frame.NewFrame(frame.FromImage(canvas), d, loop, loopCount))

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, p.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = saved
		}
	}
	return frames
}
