// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// PricePoint is one daily close observation.
type PricePoint struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
	Time  int64   `json:"time,omitempty"` // epoch seconds, when the store provides it
}

// HourlyPrice is one OHLC observation from the hour-resolution series.
type HourlyPrice struct {
	Time  int64   `json:"time"` // epoch seconds
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Open  float64 `json:"open"`
	Close float64 `json:"close"`
}

// PriceStats summarizes a close series for prompt construction.
type PriceStats struct {
	Count     int
	First     float64
	Last      float64
	High      float64
	Low       float64
	ChangePct float64
}

// ComputePriceStats derives range statistics from an ordered close
// series. Points are assumed chronological; First and Last are the ends
// of the series as given. Returns ok=false when the series is empty.
func ComputePriceStats(points []PricePoint) (PriceStats, bool) {
	if len(points) == 0 {
		return PriceStats{}, false
	}
	s := PriceStats{
		Count: len(points),
		First: points[0].Close,
		Last:  points[len(points)-1].Close,
		High:  points[0].Close,
		Low:   points[0].Close,
	}
	for _, p := range points {
		if p.Close > s.High {
			s.High = p.Close
		}
		if p.Close < s.Low {
			s.Low = p.Close
		}
	}
	if s.First > 0 {
		s.ChangePct = (s.Last - s.First) / s.First * 100
	}
	return s, true
}

// FoldHourly reduces OHLC rows to close-only points so hour-resolution
// data flows through the same summarization path as daily data. The
// Date field is left empty; Time carries the observation instant.
func FoldHourly(rows []HourlyPrice) []PricePoint {
	out := make([]PricePoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, PricePoint{Close: r.Close, Time: r.Time})
	}
	return out
}
