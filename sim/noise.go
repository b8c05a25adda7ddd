package sim

import "math"

func fract(x float64) float64 {
	return x - math.Floor(x)
}

func mix(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func smoothstep(e0, e1, x float64) float64 {
	if e1 == e0 {
		if x < e0 {
			return 0
		}
		return 1
	}
	t := clamp((x-e0)/(e1-e0), 0, 1)
	return t * t * (3 - 2*t)
}

// hash2 maps a point to a pseudo-random value in [0,1).
func hash2(x, y float64) float64 {
	x = fract(x * 123.34)
	y = fract(y * 345.45)
	d := x*(x+34.345) + y*(y+34.345)
	x += d
	y += d
	return fract(x * y)
}

// valueNoise is smooth lattice noise in [0,1].
func valueNoise(x, y float64) float64 {
	ix, iy := math.Floor(x), math.Floor(y)
	fx, fy := x-ix, y-iy
	a := hash2(ix, iy)
	b := hash2(ix+1, iy)
	c := hash2(ix, iy+1)
	d := hash2(ix+1, iy+1)
	ux := fx * fx * (3 - 2*fx)
	uy := fy * fy * (3 - 2*fy)
	return mix(a, b, ux) + (c-a)*uy*(1-ux) + (d-b)*ux*uy
}

// curl returns the rotated noise gradient (central differences, unscaled).
func curl(x, y, e float64) (vx, vy float64) {
	gx := valueNoise(x+e, y) - valueNoise(x-e, y)
	gy := valueNoise(x, y+e) - valueNoise(x, y-e)
	return gy, -gx
}

// aspectVec scales the shorter side to one.
func aspectVec(aspect float64) (ax, ay float64) {
	if aspect <= 0 || math.IsNaN(aspect) || math.IsInf(aspect, 0) {
		return 1, 1
	}
	if aspect >= 1 {
		return aspect, 1
	}
	return 1, 1 / aspect
}
