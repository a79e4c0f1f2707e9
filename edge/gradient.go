package edge

// Gradient direction sectors. The sector names the axis along which the
// gradient points, i.e. the axis NMS compares along.
const (
	sector0   uint8 = iota // horizontal: compare left/right
	sector45               // down-right diagonal: compare (x-1,y-1)/(x+1,y+1)
	sector90               // vertical: compare up/down
	sector135              // down-left diagonal: compare (x+1,y-1)/(x-1,y+1)
)

// tan(22.5°) and tan(67.5°) scaled by 1000 for integer sector tests.
const (
	tan22 = 414
	tan67 = 2414
)

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// gradient runs Sobel 3×3 over the blurred image (clamp-to-edge) and stores
// the L1 magnitude and quantised direction of every pixel.
//
// |gx|+|gy| peaks at 2040, which uint16 holds without clamping.
func gradient(src []uint8, w, h int, mag []uint16, dir []uint8) {
	at := func(x, y int) int {
		return int(src[clamp(y, h)*w+clamp(x, w)])
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tl, tc, tr := at(x-1, y-1), at(x, y-1), at(x+1, y-1)
			ml, mr := at(x-1, y), at(x+1, y)
			bl, bc, br := at(x-1, y+1), at(x, y+1), at(x+1, y+1)

			gx := (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy := (bl + 2*bc + br) - (tl + 2*tc + tr)

			ax, ay := abs(gx), abs(gy)
			i := y*w + x
			mag[i] = uint16(ax + ay)

			switch {
			case ay*1000 <= ax*tan22:
				dir[i] = sector0
			case ay*1000 >= ax*tan67:
				dir[i] = sector90
			case (gx > 0) == (gy > 0):
				dir[i] = sector45
			default:
				dir[i] = sector135
			}
		}
	}
}
