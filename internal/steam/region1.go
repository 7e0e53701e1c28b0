// v0
// internal/steam/region1.go
package steam

import "math"

// Compressed liquid, IAPWS-IF97 region 1.

const (
	gasConstant = 461.526 // J/(kg·K)

	r1PStar = 16.53e6 // Pa
	r1TStar = 1386.0  // K
)

var r1I = [34]float64{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 2, 2, 2, 2, 2, 3, 3, 3, 4, 4, 4, 5, 8, 8, 21, 23, 29, 30, 31, 32}

var r1J = [34]float64{-2, -1, 0, 1, 2, 3, 4, 5, -9, -7, -1, 0, 1, 3, -3, 0, 1, 3, 17, -4, 0, 6, -5, -2, 10, -8, -11, -6, -29, -31, -38, -39, -40, -41}

var r1N = [34]float64{
	0.14632971213167, -0.84548187169114, -0.37563603672040e1, 0.33855169168385e1,
	-0.95791963387872, 0.15772038513228, -0.16616417199501e-1, 0.81214629983568e-3,
	0.28319080123804e-3, -0.60706301565874e-3, -0.18990068218419e-1, -0.32529748770505e-1,
	-0.21841717175414e-1, -0.52838357969930e-4, -0.47184321073267e-3, -0.30001780793026e-3,
	0.47661393906987e-4, -0.44141845330846e-5, -0.72694996297594e-15, -0.31679644845054e-4,
	-0.28270797985312e-5, -0.85205128120103e-9, -0.22425281908000e-5, -0.65171222895601e-6,
	-0.14341729937924e-12, -0.40516996860117e-6, -0.12734301741641e-8, -0.17424871230634e-9,
	-0.68762131295531e-18, 0.14478307828521e-19, 0.26335781662795e-22, -0.11947622640071e-22,
	0.18228094581404e-23, -0.93537087292458e-25,
}

// point is a fully resolved single-phase or saturated-mixture state.
type point struct {
	T, P    float64
	H, S, V float64
	Cp      float64
	X       float64 // -1 outside the two-phase dome
}

func region1(p, t float64) point {
	pi := p / r1PStar
	tau := r1TStar / t
	a := 7.1 - pi
	b := tau - 1.222

	var g, gp, gt, gtt float64
	for k := range r1N {
		n, i, j := r1N[k], r1I[k], r1J[k]
		ai := math.Pow(a, i)
		bj := math.Pow(b, j)
		g += n * ai * bj
		gp -= n * i * math.Pow(a, i-1) * bj
		gt += n * ai * j * math.Pow(b, j-1)
		gtt += n * ai * j * (j - 1) * math.Pow(b, j-2)
	}
	rt := gasConstant * t
	return point{
		T:  t,
		P:  p,
		V:  rt * pi * gp / p,
		H:  rt * tau * gt,
		S:  gasConstant * (tau*gt - g),
		Cp: -gasConstant * tau * tau * gtt,
		X:  -1,
	}
}
