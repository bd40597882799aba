package builtin

import (
	"math"

	"github.com/antigravity-dev/boa/internal/encoder"
	"github.com/antigravity-dev/boa/internal/specfile"
)

// ClausiusClapeyronConstraint enforces that a candidate's absolute-humidity
// column stays at or below the saturation value implied by the
// Clausius-Clapeyron relation at its temperature column — a physical
// feasibility constraint common in climate-control process specs.
type ClausiusClapeyronConstraint struct{}

func (ClausiusClapeyronConstraint) Name() string { return "clausius_clapeyron" }

func (ClausiusClapeyronConstraint) DefaultParams() map[string]any {
	return map[string]any{"absolute_humidity_column": "absolute_humidity", "temperature_column": "temperature"}
}

const (
	clausiusClapeyronL  = 2.501e6 // latent heat of vaporization, J/kg
	clausiusClapeyronRv = 461.5   // specific gas constant for water vapor, J/(kg*K)
	clausiusClapeyronT0 = 273.15  // reference temperature, K
	clausiusClapeyronP0 = 6.112   // saturation vapor pressure at T0, hPa (Magnus-ish scaling factor)
)

// saturationHumidity returns an approximate saturation absolute humidity
// (g/m^3) at temperature tempC (Celsius), derived from the Clausius-Clapeyron
// relation for saturation vapor pressure.
func saturationHumidity(tempC float64) float64 {
	tK := tempC + clausiusClapeyronT0
	satPressure := clausiusClapeyronP0 * math.Exp(clausiusClapeyronL/clausiusClapeyronRv*(1/clausiusClapeyronT0-1/tK))
	return 2.1674 * satPressure * 100 / tK
}

func (c ClausiusClapeyronConstraint) columns(spec *specfile.ProcessSpec, params map[string]any) (humidityName, tempName string) {
	humidityName, _ = params["absolute_humidity_column"].(string)
	tempName, _ = params["temperature_column"].(string)
	if humidityName == "" {
		humidityName = "absolute_humidity"
	}
	if tempName == "" {
		tempName = "temperature"
	}
	return
}

func (c ClausiusClapeyronConstraint) Check(X [][]float64, spec *specfile.ProcessSpec, params map[string]any) ([]bool, error) {
	enc := encoder.New(spec)
	humidityName, tempName := c.columns(spec, params)
	raws := enc.Decode(X)

	out := make([]bool, len(raws))
	for i, raw := range raws {
		h := asFloat(raw[humidityName])
		t := asFloat(raw[tempName])
		out[i] = h <= saturationHumidity(t)
	}
	return out, nil
}

func (c ClausiusClapeyronConstraint) Apply(X [][]float64, spec *specfile.ProcessSpec, params map[string]any) ([][]float64, error) {
	enc := encoder.New(spec)
	humidityName, tempName := c.columns(spec, params)
	raws := enc.Decode(X)

	humidityInput, hasHumidity := spec.InputByName(humidityName)
	if !hasHumidity {
		return X, nil
	}

	for _, raw := range raws {
		t := asFloat(raw[tempName])
		h := asFloat(raw[humidityName])
		sat := saturationHumidity(t)
		if h > sat {
			raw[humidityName] = math.Max(humidityInput.Lo, math.Min(sat, humidityInput.Hi))
		}
	}

	out := make([][]float64, len(raws))
	for i, raw := range raws {
		out[i] = enc.Project(enc.EncodeOne(raw))
	}
	return out, nil
}
