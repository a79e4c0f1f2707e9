package edge

import "github.com/kartik-911/Real-Time-Edge-Detection-Viewer/frame"

// kernels holds binomial approximations of a Gaussian, keyed by tap count.
// Each row sums to a power of two.
var kernels = map[int][]uint32{
	1: {1},
	3: {1, 2, 1},
	5: {1, 4, 6, 4, 1},
	7: {1, 6, 15, 20, 15, 6, 1},
}

// clamp limits i to [0, n-1].
func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// blur writes the smoothed luma into dst (tightly packed, w*h).
//
// Horizontal pass keeps unnormalised sums in tmp; the vertical pass divides
// once by sum² with rounding, so no precision is lost between passes.
func blur(src frame.LumaPlane, dst []uint8, tmp []uint32, taps []uint32) {
	w, h := src.Width, src.Height

	if len(taps) == 1 {
		for y := 0; y < h; y++ {
			copy(dst[y*w:(y+1)*w], src.Pix[y*src.Stride:])
		}
		return
	}

	r := len(taps) / 2
	var sum uint32
	for _, k := range taps {
		sum += k
	}
	norm := sum * sum
	half := norm / 2

	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		out := tmp[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var acc uint32
			for i, k := range taps {
				acc += k * uint32(row[clamp(x+i-r, w)])
			}
			out[x] = acc
		}
	}

	for y := 0; y < h; y++ {
		out := dst[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			var acc uint32
			for i, k := range taps {
				acc += k * tmp[clamp(y+i-r, h)*w+x]
			}
			out[x] = uint8((acc + half) / norm)
		}
	}
}
