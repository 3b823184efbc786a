package broadcast

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/amiralifaghihirad/Project-ECM/internal/domain"
)

// Parse rejection reasons, used as metric labels.
const (
	reasonEmpty            = "empty"
	reasonInvalidJSON      = "invalid_json"
	reasonNotObject        = "not_object"
	reasonMissingValue     = "missing_value"
	reasonInvalidValue     = "invalid_value"
	reasonInvalidTimestamp = "invalid_timestamp"
)

const (
	fieldValue     = "value"
	fieldTimestamp = "timestamp"
	fieldSensor    = "sensor"
)

// Numeric timestamps above this are taken as Unix milliseconds, below as seconds.
const unixMillisThreshold = 1e12

// Outbound frames are JSON, which only encodes years 0 through 9999.
const (
	minTimestampYear = 0
	maxTimestampYear = 9999
)

// parseReading decodes one inbound payload.
//
// The payload must be a JSON object with a numeric "value" (a JSON number or a
// numeric string). When "value" is absent, primaryField names a numeric field
// to use instead, which covers devices that send {"gas":..,"temp":..}.
// Remaining numeric fields are kept in Reading.Fields; anything else is ignored.
// Without a "timestamp" the reading is stamped with receivedAt.
func parseReading(raw []byte, receivedAt time.Time, primaryField string) (domain.Reading, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return domain.Reading{}, &domain.ParseError{Reason: reasonEmpty}
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return domain.Reading{}, &domain.ParseError{Reason: reasonNotObject, Err: err}
		}
		return domain.Reading{}, &domain.ParseError{Reason: reasonInvalidJSON, Err: err}
	}
	if payload == nil {
		return domain.Reading{}, &domain.ParseError{Reason: reasonNotObject}
	}

	extras := make(map[string]float64)
	for name, rawField := range payload {
		if name == fieldValue || name == fieldTimestamp || name == fieldSensor {
			continue
		}
		if v, ok := jsonNumber(rawField); ok {
			extras[name] = v
		}
	}

	var sensor string
	if rawSensor, ok := payload[fieldSensor]; ok {
		_ = json.Unmarshal(rawSensor, &sensor)
	}

	var value float64
	if rawValue, ok := payload[fieldValue]; ok {
		v, err := numericValue(rawValue)
		if err != nil {
			return domain.Reading{}, &domain.ParseError{Reason: reasonInvalidValue, Err: err}
		}
		value = v
	} else if v, ok := extras[primaryField]; ok && primaryField != "" {
		value = v
		delete(extras, primaryField)
		if sensor == "" {
			sensor = primaryField
		}
	} else {
		return domain.Reading{}, &domain.ParseError{Reason: reasonMissingValue}
	}

	ts := receivedAt
	if rawTS, ok := payload[fieldTimestamp]; ok && !isJSONNull(rawTS) {
		parsed, err := parseTimestamp(rawTS)
		if err != nil {
			return domain.Reading{}, &domain.ParseError{Reason: reasonInvalidTimestamp, Err: err}
		}
		ts = parsed
	}

	return domain.NewReading(ts, value, sensor, extras), nil
}

// numericValue accepts a JSON number or a string holding a finite number.
func numericValue(raw json.RawMessage) (float64, error) {
	if v, ok := jsonNumber(raw); ok {
		return v, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, errors.New("value is neither a number nor a numeric string")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("value is not finite")
	}
	return v, nil
}

// jsonNumber decodes raw only if it is a JSON number literal.
// encoding/json never yields NaN or Inf from a number literal.
func jsonNumber(raw json.RawMessage) (float64, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	if len(raw) > 0 && raw[0] == '"' {
		return 0, false
	}
	v, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	var ts time.Time
	if v, ok := jsonNumber(raw); ok {
		if math.Abs(v) >= unixMillisThreshold {
			if v >= math.MaxInt64 || v <= math.MinInt64 {
				return time.Time{}, errors.New("timestamp out of range")
			}
			ts = time.UnixMilli(int64(v))
		} else {
			sec, frac := math.Modf(v)
			ts = time.Unix(int64(sec), int64(frac*1e9))
		}
	} else {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, errors.New("timestamp is neither a number nor a string")
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, err
		}
		ts = parsed
	}

	ts = ts.UTC()
	if year := ts.Year(); year < minTimestampYear || year > maxTimestampYear {
		return time.Time{}, fmt.Errorf("timestamp year %d outside [%d, %d]", year, minTimestampYear, maxTimestampYear)
	}
	return ts, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
