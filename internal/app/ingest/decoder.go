package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/relvacode/iso8601"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
)

// ErrInvalidSample is wrapped by every ValidationError.
var ErrInvalidSample = errors.New("ingest: invalid sample")

// ValidationError says which field of the body was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid sample: %s", e.Reason)
	}
	return fmt.Sprintf("invalid sample: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidSample }

type wireSample struct {
	Voltage     *float64 `json:"voltaje"`
	Current     *float64 `json:"corriente"`
	Temperature *float64 `json:"temperatura"`
	Battery     *float64 `json:"bateria"`
	Power       *float64 `json:"potencia"`
	Timestamp   *string  `json:"timestamp"`
}

// DecodeSample parses one reading. voltaje, corriente and temperatura are
// required; bateria and potencia stay nil when absent. A missing timestamp
// is left zero for the store to fill in.
func DecodeSample(raw []byte) (domain.Sample, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return domain.Sample{}, &ValidationError{Reason: "empty body"}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var w wireSample
	if err := dec.Decode(&w); err != nil {
		return domain.Sample{}, decodeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.Sample{}, &ValidationError{Reason: "trailing data after JSON object"}
	}

	required := []struct {
		name string
		v    *float64
	}{
		{"voltaje", w.Voltage},
		{"corriente", w.Current},
		{"temperatura", w.Temperature},
	}
	for _, f := range required {
		if f.v == nil {
			return domain.Sample{}, &ValidationError{Field: f.name, Reason: "required"}
		}
	}
	s := domain.Sample{
		Voltage:     w.Voltage,
		Current:     w.Current,
		Temperature: w.Temperature,
		Battery:     w.Battery,
		Power:       w.Power,
	}
	if w.Timestamp != nil {
		ts, err := iso8601.ParseString(*w.Timestamp)
		if err != nil {
			return domain.Sample{}, &ValidationError{Field: "timestamp", Reason: "must be an ISO-8601 date"}
		}
		s.Timestamp = ts
	}
	return s.Normalize(), nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		return &ValidationError{Field: typeErr.Field, Reason: "must be a " + typeName(typeErr)}
	case errors.As(err, &syntaxErr):
		return &ValidationError{Reason: "malformed JSON"}
	case errors.Is(err, io.ErrUnexpectedEOF):
		return &ValidationError{Reason: "malformed JSON"}
	default:
		// Unknown fields only surface as a plain error string.
		return &ValidationError{Reason: err.Error()}
	}
}

func typeName(e *json.UnmarshalTypeError) string {
	if e.Field == "" {
		return "JSON object"
	}
	if e.Type.Kind() == reflect.String {
		return "string"
	}
	return "number"
}
