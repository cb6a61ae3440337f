package output

import "github.com/coreman2200/funtimes-arcaluminis/internal/frame"

// DefaultChanMA is the draw of one WS281x channel at full scale.
const DefaultChanMA = 20.0

// Limiter keeps images inside the LED supply's current budget before they
// reach hardware. It runs in two stages:
//  1. a per-LED white cap scales (R,G,B) so R+G+B stays under WhiteCap of full white
//  2. a global budget scales the whole image, compressing softly above Knee*BudgetMA
type Limiter struct {
	ChanMA   float64
	BudgetMA float64 // 0 disables stage 2
	WhiteCap float64 // fraction of full white, 0 or 1 disables stage 1
	Knee     float64
}

// NewLimiter returns a limiter for budgetMA with the usual WS281x model.
func NewLimiter(budgetMA, whiteCap float64) *Limiter {
	return &Limiter{ChanMA: DefaultChanMA, BudgetMA: budgetMA, WhiteCap: whiteCap, Knee: 0.9}
}

// EstimateCurrent returns the estimated draw in mA of an RGB pixel slice.
func EstimateCurrent(rgb []byte, chanMA float64) float64 {
	var sum float64
	for _, v := range rgb {
		sum += float64(v)
	}
	return sum / 255 * chanMA
}

// Apply returns img limited to the budget. img is never modified; it is
// returned as is when already within limits.
func (l *Limiter) Apply(img *frame.Image) *frame.Image {
	out := img
	if l.WhiteCap > 0 && l.WhiteCap < 1 {
		limit := l.WhiteCap * 3 * 255
		for i := 0; i+2 < len(img.Pix); i += frame.Channels {
			s := float64(img.Pix[i]) + float64(img.Pix[i+1]) + float64(img.Pix[i+2])
			if s <= limit {
				continue
			}
			if out == img {
				out = img.Clone()
			}
			k := limit / s
			for c := 0; c < frame.Channels; c++ {
				out.Pix[i+c] = uint8(float64(img.Pix[i+c]) * k)
			}
		}
	}

	if l.BudgetMA <= 0 {
		return out
	}
	chanMA := l.ChanMA
	if chanMA <= 0 {
		chanMA = DefaultChanMA
	}
	total := EstimateCurrent(out.Pix, chanMA)
	if total <= 0 {
		return out
	}
	knee := l.Knee
	if knee <= 0 || knee >= 1 {
		knee = 0.9
	}

	// Above knee*budget the excess is halved, which meets the budget exactly
	// at (2-knee)*budget; past that the image is scaled straight to budget.
	soft := knee * l.BudgetMA
	target := l.BudgetMA
	if total <= soft {
		return out
	}
	if total <= (2-knee)*l.BudgetMA {
		target = soft + (total-soft)/2
	}
	s := target / total
	if out == img {
		out = img.Clone()
	}
	for i, v := range out.Pix {
		out.Pix[i] = uint8(float64(v) * s)
	}
	return out
}
