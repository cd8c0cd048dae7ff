package models

import (
	"fmt"
	"time"
)

// Document запись без схемы в том виде, в каком ее отдает хранилище
type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// MalformedDocumentError отбраковывает документ на границе синхронизации
type MalformedDocumentError struct {
	ID     string
	Field  string
	Reason string
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed document %q: field %q %s", e.ID, e.Field, e.Reason)
}

func (d Document) malformed(field, reason string) error {
	return &MalformedDocumentError{ID: d.ID, Field: field, Reason: reason}
}

func (d Document) requiredString(field string) (string, error) {
	s, err := d.optionalString(field)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", d.malformed(field, "is required")
	}
	return s, nil
}

func (d Document) optionalString(field string) (string, error) {
	switch v := d.Fields[field].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", d.malformed(field, fmt.Sprintf("has type %T, want string", v))
	}
}

func (d Document) optionalBool(field string) (bool, error) {
	switch v := d.Fields[field].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, d.malformed(field, fmt.Sprintf("has type %T, want bool", v))
	}
}

func (d Document) optionalStrings(field string) ([]string, error) {
	switch v := d.Fields[field].(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, d.malformed(field, fmt.Sprintf("contains %T, want string", item))
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, d.malformed(field, fmt.Sprintf("has type %T, want list of strings", v))
	}
}

// optionalTime принимает время в любом виде, который отдают адаптеры хранилища.
// nil означает, что серверное время еще не проставлено
func (d Document) optionalTime(field string) (*time.Time, error) {
	switch v := d.Fields[field].(type) {
	case nil:
		return nil, nil
	case time.Time:
		if v.IsZero() {
			return nil, nil
		}
		return &v, nil
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil, nil
		}
		t := *v
		return &t, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, d.malformed(field, "is not an RFC3339 timestamp")
		}
		return &t, nil
	default:
		return nil, d.malformed(field, fmt.Sprintf("has type %T, want timestamp", v))
	}
}
