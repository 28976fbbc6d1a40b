// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package compliance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream(t *testing.T) {
	cases := map[string]string{
		"PET bottles":         StreamPlastic,
		"HDPE Plastic":        StreamPlastic,
		"Cardboard":           StreamPaper,
		"office paper":        StreamPaper,
		"Glass":               StreamGlass,
		"Copper":              StreamMetals,
		"Aluminum cans":       StreamMetals,
		"scrap steel":         StreamMetals,
		"WEEE":                StreamElectrical,
		"Lead-acid battery":   StreamElectrical,
		"consumer electronic": StreamElectrical,
		"Rubber":              StreamOther,
		"":                    StreamOther,
	}
	for material, want := range cases {
		assert.Equal(t, want, Stream(material), "material %q", material)
	}
}

func TestStreams_ContainsEveryStream(t *testing.T) {
	all := Streams()
	require.Len(t, all, 6)
	assert.Contains(t, all, StreamOther)
	assert.Contains(t, all, StreamElectrical)
	assert.IsIncreasing(t, all)
}

func TestFeeSchedule_Fee(t *testing.T) {
	s := DefaultFeeSchedule()
	assert.InDelta(t, 1.25, s.Fee("Copper", 12.5), 1e-9)
	assert.InDelta(t, 0.0, s.Fee("Copper", 0), 1e-9)
	assert.InDelta(t, 0.0, s.Fee("Copper", -3), 1e-9)
	assert.InDelta(t, 0.0, s.Fee("Copper", math.NaN()), 1e-9)

	s.StreamRates = map[string]float64{StreamMetals: 0.5}
	assert.InDelta(t, 6.25, s.Fee("copper wire", 12.5), 1e-9)
	assert.InDelta(t, 0.4, s.Fee("glass", 4), 1e-9)
}

func TestFeeSchedule_Validate(t *testing.T) {
	require.NoError(t, DefaultFeeSchedule().Validate())

	bad := FeeSchedule{DefaultRate: -1}
	require.Error(t, bad.Validate())

	unknown := FeeSchedule{DefaultRate: 0.1, StreamRates: map[string]float64{"Wood": 0.2}}
	require.ErrorContains(t, unknown.Validate(), "unknown stream")

	negative := FeeSchedule{DefaultRate: 0.1, StreamRates: map[string]float64{StreamGlass: -0.2}}
	require.Error(t, negative.Validate())
}
