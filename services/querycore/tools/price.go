// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/CoinScopeAI/CoinScope/pkg/validation"
	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
	"github.com/CoinScopeAI/CoinScope/services/querycore/prices"
)

// PriceResult is the typed output of the get_coin_price tool. Exactly
// one of Daily or Hourly is populated, selected by the requested
// range_type.
type PriceResult struct {
	Coin      string                  `json:"coin"`
	RangeType string                  `json:"range_type"`
	Daily     []datatypes.PricePoint  `json:"daily,omitempty"`
	Hourly    []datatypes.HourlyPrice `json:"hourly,omitempty"`
}

// IsHourly reports whether the result carries the hour-resolution
// series.
func (p *PriceResult) IsHourly() bool {
	return p.RangeType == datatypes.RangeHour
}

// Len returns the number of observations in the populated series.
func (p *PriceResult) Len() int {
	if p.IsHourly() {
		return len(p.Hourly)
	}
	return len(p.Daily)
}

// getCoinPrice implements the get_coin_price tool.
//
// Arguments:
//   - coin_name (string, required): Ticker symbol, sanitized before use.
//   - pivot_date (int, required): Epoch seconds; UTC midnight expected.
//   - range_type (string): hour, day, week, month or year. Default week.
//   - direction (string): before, after or both. Default before. The
//     hour range ignores direction and always reads the ±1-hour window.
func (r *Registry) getCoinPrice(ctx context.Context, call datatypes.ToolCall) (any, error) {
	ctx, span := toolsTracer.Start(ctx, "tools.get_coin_price")
	defer span.End()

	coin, err := validation.SanitizeCoin(call.StringArg("coin_name"))
	if err != nil {
		return nil, WrapToolError(call.ToolName, ErrCodeBadArgument, false, err)
	}

	pivotEpoch, ok := call.Int64Arg("pivot_date")
	if !ok || pivotEpoch <= 0 {
		return nil, NewToolError(call.ToolName, ErrCodeBadArgument,
			"pivot_date must be a positive epoch timestamp", false)
	}
	pivot := time.Unix(pivotEpoch, 0).UTC()

	rangeType := call.StringArg("range_type")
	if rangeType == "" {
		rangeType = datatypes.RangeWeek
	}
	direction := call.StringArg("direction")
	if direction == "" {
		direction = datatypes.DirectionBefore
	}

	start, stop, err := prices.Window(pivot, rangeType, direction)
	if err != nil {
		return nil, WrapToolError(call.ToolName, ErrCodeBadArgument, false, err)
	}

	span.SetAttributes(
		attribute.String("price.coin", coin),
		attribute.String("price.range_type", rangeType),
		attribute.String("price.direction", direction),
		attribute.Int64("price.pivot", pivotEpoch),
	)

	result := &PriceResult{Coin: coin, RangeType: rangeType}
	if rangeType == datatypes.RangeHour {
		rows, err := r.prices.HourlyOHLC(ctx, coin, start, stop)
		if err != nil {
			return nil, WrapToolError(call.ToolName, ErrCodeUpstream, true, err)
		}
		result.Hourly = rows
	} else {
		points, err := r.prices.DailyCloses(ctx, coin, start, stop)
		if err != nil {
			return nil, WrapToolError(call.ToolName, ErrCodeUpstream, true, err)
		}
		result.Daily = points
	}

	span.SetAttributes(attribute.Int("price.rows", result.Len()))
	return result, nil
}
