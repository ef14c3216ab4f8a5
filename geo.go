package main

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

const (
	earthRadiusMeters = 6371008.8 // mean radius, used for haversine math

	// WGS84 ellipsoid
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
	wgs84B = (1 - wgs84F) * wgs84A

	vincentyMaxIter   = 200
	vincentyTolerance = 1e-12
)

// --- Structs ---

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Viewpoint is a sampled track location plus the heading the camera faces.
type Viewpoint struct {
	Coordinate
	Bearing float64 `json:"bearing"`
}

func newCoordinate(lat, lng float64) (Coordinate, error) {
	c := Coordinate{Lat: lat, Lng: lng}
	if !c.finite() {
		return Coordinate{}, fmt.Errorf("%w: non-finite coordinate (%v, %v)", errInvalidInput, lat, lng)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Coordinate{}, fmt.Errorf("%w: coordinate out of range (%v, %v)", errInvalidInput, lat, lng)
	}
	return c, nil
}

func (c Coordinate) finite() bool {
	return !math.IsNaN(c.Lat) && !math.IsNaN(c.Lng) && !math.IsInf(c.Lat, 0) && !math.IsInf(c.Lng, 0)
}

func (c Coordinate) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(c.Lat, c.Lng)
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

func mustFinite(cs ...Coordinate) {
	for _, c := range cs {
		if !c.finite() {
			panic(fmt.Sprintf("geo: non-finite coordinate (%v, %v)", c.Lat, c.Lng))
		}
	}
}

// --- Geodesy ---

// distance returns the geodesic distance in meters between a and b on the
// WGS84 ellipsoid (Vincenty's inverse formula). Near-antipodal pairs where the
// iteration does not converge fall back to the spherical distance.
func distance(a, b Coordinate) float64 {
	mustFinite(a, b)
	if a == b {
		return 0
	}

	L := (b.Lng - a.Lng) * math.Pi / 180
	U1 := math.Atan((1 - wgs84F) * math.Tan(a.Lat*math.Pi/180))
	U2 := math.Atan((1 - wgs84F) * math.Tan(b.Lat*math.Pi/180))
	sinU1, cosU1 := math.Sincos(U1)
	sinU2, cosU2 := math.Sincos(U2)

	lambda := L
	var sinSigma, cosSigma, sigma, cos2Alpha, cos2SigmaM float64
	converged := false
	for i := 0; i < vincentyMaxIter; i++ {
		sinLambda, cosLambda := math.Sincos(lambda)
		sinSigma = math.Hypot(cosU2*sinLambda, cosU1*sinU2-sinU1*cosU2*cosLambda)
		if sinSigma == 0 {
			return 0 // coincident points
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)
		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cos2Alpha = 1 - sinAlpha*sinAlpha
		if cos2Alpha != 0 {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cos2Alpha
		} else {
			cos2SigmaM = 0 // equatorial line
		}
		C := wgs84F / 16 * cos2Alpha * (4 + wgs84F*(4-3*cos2Alpha))
		prev := lambda
		lambda = L + (1-C)*wgs84F*sinAlpha*(sigma+C*sinSigma*(cos2SigmaM+C*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))
		if math.Abs(lambda-prev) < vincentyTolerance {
			converged = true
			break
		}
	}
	if !converged {
		return haversineDistance(a, b)
	}

	uSq := cos2Alpha * (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B)
	A := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	B := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
	deltaSigma := B * sinSigma * (cos2SigmaM + B/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
		B/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))

	return wgs84B * A * (sigma - deltaSigma)
}

// haversineDistance is the great-circle distance in meters on a sphere of
// mean earth radius.
func haversineDistance(a, b Coordinate) float64 {
	mustFinite(a, b)
	return a.latLng().Distance(b.latLng()).Radians() * earthRadiusMeters
}

// bearing returns the initial compass bearing from a toward b in degrees,
// clockwise from north, normalized to [0, 360).
func bearing(a, b Coordinate) float64 {
	mustFinite(a, b)
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLon := (b.Lng - a.Lng) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := math.Atan2(y, x) * 180 / math.Pi
	deg = math.Mod(deg+360, 360)
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// interpolate returns points spaced evenly along the great circle from a to
// b, at most stepMeters apart, excluding both endpoints. It returns nil when
// stepMeters >= haversineDistance(a, b).
func interpolate(a, b Coordinate, stepMeters float64) []Coordinate {
	mustFinite(a, b)
	if math.IsNaN(stepMeters) || stepMeters <= 0 {
		panic(fmt.Sprintf("geo: invalid interpolation step %v", stepMeters))
	}
	d := haversineDistance(a, b)
	if stepMeters >= d {
		return nil
	}

	// Tolerate float noise when the step was derived as d/k.
	n := int(math.Ceil(d/stepMeters - 1e-9))
	if n < 2 {
		return nil
	}

	pa := s2.PointFromLatLng(a.latLng())
	pb := s2.PointFromLatLng(b.latLng())
	points := make([]Coordinate, 0, n-1)
	for i := 1; i < n; i++ {
		ll := s2.LatLngFromPoint(s2.Interpolate(float64(i)/float64(n), pa, pb))
		points = append(points, Coordinate{Lat: ll.Lat.Degrees(), Lng: ll.Lng.Degrees()})
	}
	return points
}

// deg2num projects a coordinate onto web-mercator tile space at the given
// zoom level.
func deg2num(lat, lon float64, zoom int) (float64, float64) {
	latRad := lat * math.Pi / 180
	n := math.Pow(2, float64(zoom))
	xtile := (lon + 180) / 360 * n
	ytile := (1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2 * n
	return xtile, ytile
}
