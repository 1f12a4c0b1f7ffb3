// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prices reads coin price series from the market data store.
//
// The Reader interface abstracts the store; the InfluxDB implementation
// in influx.go is the production one. Window converts the pipeline's
// (pivot, range_type, direction) triple into the absolute time range a
// reader consumes.
package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

// Reader fetches price series for one coin over an absolute time range.
type Reader interface {
	// DailyCloses returns one close per day in [start, stop), in
	// chronological order.
	DailyCloses(ctx context.Context, coin string, start, stop time.Time) ([]datatypes.PricePoint, error)

	// HourlyOHLC returns raw OHLC rows in [start, stop), in
	// chronological order.
	HourlyOHLC(ctx context.Context, coin string, start, stop time.Time) ([]datatypes.HourlyPrice, error)

	// Close releases the underlying store connection.
	Close()
}

// Offsets per range type, in seconds.
const (
	offsetHour  = 3600
	offsetDay   = 86400
	offsetWeek  = 7 * offsetDay
	offsetMonth = 30 * offsetDay
	offsetYear  = 365 * offsetDay
)

// rangeOffsets maps a range type to its interval length.
var rangeOffsets = map[string]int64{
	datatypes.RangeHour:  offsetHour,
	datatypes.RangeDay:   offsetDay,
	datatypes.RangeWeek:  offsetWeek,
	datatypes.RangeMonth: offsetMonth,
	datatypes.RangeYear:  offsetYear,
}

// Window resolves the absolute [start, stop) range for a price lookup.
//
// The hour range is always the ±1-hour window around the pivot,
// regardless of direction; the other ranges extend from the pivot in
// the requested direction.
func Window(pivot time.Time, rangeType, direction string) (time.Time, time.Time, error) {
	offset, ok := rangeOffsets[rangeType]
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("unknown range_type %q", rangeType)
	}
	span := time.Duration(offset) * time.Second

	if rangeType == datatypes.RangeHour {
		return pivot.Add(-span), pivot.Add(span), nil
	}

	switch direction {
	case datatypes.DirectionBefore:
		return pivot.Add(-span), pivot, nil
	case datatypes.DirectionAfter:
		return pivot, pivot.Add(span), nil
	case datatypes.DirectionBoth:
		return pivot.Add(-span), pivot.Add(span), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unknown direction %q", direction)
}
