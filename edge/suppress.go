package edge

// Pixel classes after the double threshold.
const (
	classNone   uint8 = 0
	classWeak   uint8 = 1
	classStrong uint8 = 2
)

// level reduces a 16-bit magnitude to the 8-bit comparison domain.
func level(m uint16) uint8 {
	v := m >> 3
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// suppress performs non-maximum suppression and the double threshold in one
// pass, writing a class per pixel.
//
// A pixel survives NMS when its magnitude is strictly greater than the
// neighbour behind it and at least equal to the one ahead (along the
// gradient). On a two-pixel plateau only the first pixel survives, so ridges
// stay one pixel wide. Neighbours outside the image count as 0.
func suppress(mag []uint16, dir []uint8, w, h int, th Thresholds, class []uint8) {
	at := func(x, y int) uint16 {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			class[i] = classNone
			if m == 0 {
				continue
			}

			var a, b uint16
			switch dir[i] {
			case sector0:
				a, b = at(x-1, y), at(x+1, y)
			case sector45:
				a, b = at(x-1, y-1), at(x+1, y+1)
			case sector90:
				a, b = at(x, y-1), at(x, y+1)
			default:
				a, b = at(x+1, y-1), at(x-1, y+1)
			}
			if m <= a || m < b {
				continue
			}

			switch l := level(m); {
			case l >= th.High:
				class[i] = classStrong
			case l >= th.Low:
				class[i] = classWeak
			}
		}
	}
}

// hysteresis promotes every weak pixel 8-connected to a strong one, through
// chains of any length. stack is reused scratch; the grown slice is returned.
func hysteresis(class []uint8, w, h int, stack []int32) []int32 {
	stack = stack[:0]
	for i, c := range class {
		if c == classStrong {
			stack = append(stack, int32(i))
		}
	}

	for len(stack) > 0 {
		i := int(stack[len(stack)-1])
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w

		for dy := -1; dy <= 1; dy++ {
			ny := y + dy
			if ny < 0 || ny >= h {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				nx := x + dx
				if (dx == 0 && dy == 0) || nx < 0 || nx >= w {
					continue
				}
				j := ny*w + nx
				if class[j] == classWeak {
					class[j] = classStrong
					stack = append(stack, int32(j))
				}
			}
		}
	}

	return stack
}
