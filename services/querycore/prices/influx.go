// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prices

import (
	"context"
	"fmt"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/CoinScopeAI/CoinScope/pkg/validation"
	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

var tracer = otel.Tracer("coinscope.prices.influx")

// measurement and tag layout of the market data bucket.
const (
	priceMeasurement = "coin_prices"
	priceSymbolTag   = "symbol"
)

// InfluxConfig carries the InfluxDB connection settings.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxConfigFromEnv reads INFLUXDB_* with development defaults, so the
// CLI running on a host next to the compose stack works untouched.
func InfluxConfigFromEnv() InfluxConfig {
	cfg := InfluxConfig{
		URL:    os.Getenv("INFLUXDB_URL"),
		Token:  os.Getenv("INFLUXDB_TOKEN"),
		Org:    os.Getenv("INFLUXDB_ORG"),
		Bucket: os.Getenv("INFLUXDB_BUCKET"),
	}
	if cfg.URL == "" {
		cfg.URL = "http://localhost:8086"
	}
	if cfg.Token == "" {
		cfg.Token = "coinscope-dev-token"
	}
	if cfg.Org == "" {
		cfg.Org = "coinscope"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "market-data"
	}
	return cfg
}

// InfluxReader is the production Reader backed by InfluxDB 2.x.
type InfluxReader struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	bucket   string
}

var _ Reader = (*InfluxReader)(nil)

// NewInfluxReader connects to InfluxDB and returns a Reader. The
// connection is lazy; the first query surfaces connectivity problems.
func NewInfluxReader(cfg InfluxConfig) (*InfluxReader, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx configuration incomplete: url=%q org=%q bucket=%q",
			cfg.URL, cfg.Org, cfg.Bucket)
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxReader{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
	}, nil
}

// Close shuts down the underlying HTTP client.
func (r *InfluxReader) Close() {
	r.client.Close()
}

// dailyFluxQuery builds the Flux query for a daily close series. The
// symbol must already be sanitized; it is interpolated into the filter.
func dailyFluxQuery(bucket, symbol string, start, stop time.Time) string {
	return fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: %s, stop: %s)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.%s == "%s")
		  |> filter(fn: (r) => r._field == "close")
		  |> aggregateWindow(every: 1d, fn: last, createEmpty: false)
		  |> sort(columns: ["_time"], desc: false)
	`, bucket, start.UTC().Format(time.RFC3339), stop.UTC().Format(time.RFC3339),
		priceMeasurement, priceSymbolTag, symbol)
}

// hourlyFluxQuery builds the Flux query for raw OHLC rows.
func hourlyFluxQuery(bucket, symbol string, start, stop time.Time) string {
	return fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: %s, stop: %s)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.%s == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: false)
	`, bucket, start.UTC().Format(time.RFC3339), stop.UTC().Format(time.RFC3339),
		priceMeasurement, priceSymbolTag, symbol)
}

// DailyCloses returns one close per day for the coin over [start, stop).
func (r *InfluxReader) DailyCloses(ctx context.Context, coin string, start, stop time.Time) ([]datatypes.PricePoint, error) {
	ctx, span := tracer.Start(ctx, "InfluxReader.DailyCloses")
	defer span.End()

	symbol, err := validation.SanitizeCoin(coin)
	if err != nil {
		span.SetStatus(codes.Error, "invalid coin")
		return nil, fmt.Errorf("invalid coin: %w", err)
	}

	result, err := r.queryAPI.Query(ctx, dailyFluxQuery(r.bucket, symbol, start, stop))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("influx query failed: %w", err)
	}

	var points []datatypes.PricePoint
	for result.Next() {
		record := result.Record()
		close, ok := record.Value().(float64)
		if !ok {
			continue
		}
		t := record.Time()
		points = append(points, datatypes.PricePoint{
			Date:  t.UTC().Format("2006-01-02"),
			Close: close,
			Time:  t.Unix(),
		})
	}
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, "result read failed")
		return nil, fmt.Errorf("error reading influx results: %w", result.Err())
	}
	return points, nil
}

// HourlyOHLC returns raw OHLC rows for the coin over [start, stop).
func (r *InfluxReader) HourlyOHLC(ctx context.Context, coin string, start, stop time.Time) ([]datatypes.HourlyPrice, error) {
	ctx, span := tracer.Start(ctx, "InfluxReader.HourlyOHLC")
	defer span.End()

	symbol, err := validation.SanitizeCoin(coin)
	if err != nil {
		span.SetStatus(codes.Error, "invalid coin")
		return nil, fmt.Errorf("invalid coin: %w", err)
	}

	result, err := r.queryAPI.Query(ctx, hourlyFluxQuery(r.bucket, symbol, start, stop))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("influx query failed: %w", err)
	}

	var rows []datatypes.HourlyPrice
	for result.Next() {
		record := result.Record()
		row := datatypes.HourlyPrice{Time: record.Time().Unix()}
		if v, ok := record.ValueByKey("open").(float64); ok {
			row.Open = v
		}
		if v, ok := record.ValueByKey("high").(float64); ok {
			row.High = v
		}
		if v, ok := record.ValueByKey("low").(float64); ok {
			row.Low = v
		}
		if v, ok := record.ValueByKey("close").(float64); ok {
			row.Close = v
		}
		rows = append(rows, row)
	}
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, "result read failed")
		return nil, fmt.Errorf("error reading influx results: %w", result.Err())
	}
	return rows, nil
}
