// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package compliance classifies recycled materials into extended producer
// responsibility (EPR) streams and computes the per-capture compliance fee.
package compliance

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// EPR stream names
const (
	StreamPlastic    = "Plastic"
	StreamPaper      = "Paper & Packaging"
	StreamGlass      = "Glass"
	StreamMetals     = "Metals"
	StreamElectrical = "Electrical & Electronic"
	StreamOther      = "Other"
)

// DefaultRatePerKg is the flat fee charged per kilogram when no stream override applies
const DefaultRatePerKg = 0.1

// streamKeywords is matched in order; the first stream with a matching keyword wins
var streamKeywords = []struct {
	stream   string
	keywords []string
}{
	{StreamPlastic, []string{"plastic", "pet"}},
	{StreamPaper, []string{"paper", "cardboard"}},
	{StreamGlass, []string{"glass"}},
	{StreamMetals, []string{"copper", "aluminum", "steel", "metal"}},
	{StreamElectrical, []string{"electronic", "weee", "battery"}},
}

// Stream returns the EPR stream of a free-form material description
func Stream(material string) string {
	m := strings.ToLower(material)
	for _, s := range streamKeywords {
		for _, kw := range s.keywords {
			if strings.Contains(m, kw) {
				return s.stream
			}
		}
	}
	return StreamOther
}

// Streams lists every known stream name, sorted
func Streams() []string {
	out := []string{StreamOther}
	for _, s := range streamKeywords {
		out = append(out, s.stream)
	}
	sort.Strings(out)
	return out
}

// FeeSchedule prices compliance fees per kilogram
type FeeSchedule struct {
	DefaultRate float64            // per kg, used when a stream has no override
	StreamRates map[string]float64 // per kg, keyed by stream name
}

// DefaultFeeSchedule returns the flat schedule with no stream overrides
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{DefaultRate: DefaultRatePerKg}
}

// Validate rejects negative or non-finite rates and unknown stream names
func (s FeeSchedule) Validate() error {
	if !validRate(s.DefaultRate) {
		return fmt.Errorf("invalid default rate %v", s.DefaultRate)
	}
	known := make(map[string]bool)
	for _, name := range Streams() {
		known[name] = true
	}
	for name, rate := range s.StreamRates {
		if !known[name] {
			return fmt.Errorf("unknown stream %q", name)
		}
		if !validRate(rate) {
			return fmt.Errorf("invalid rate %v for stream %q", rate, name)
		}
	}
	return nil
}

// Rate returns the per-kg rate applied to material
func (s FeeSchedule) Rate(material string) float64 {
	if r, ok := s.StreamRates[Stream(material)]; ok {
		return r
	}
	return s.DefaultRate
}

// Fee returns the compliance fee for weightKg of material, rounded to cents.
// Negative weights yield zero.
func (s FeeSchedule) Fee(material string, weightKg float64) float64 {
	if weightKg <= 0 || math.IsNaN(weightKg) || math.IsInf(weightKg, 0) {
		return 0
	}
	return math.Round(weightKg*s.Rate(material)*100) / 100
}

func validRate(r float64) bool {
	return r >= 0 && !math.IsNaN(r) && !math.IsInf(r, 0)
}
