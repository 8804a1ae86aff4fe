package promotion

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Document is the JSON representation of a promotion.
type Document struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Discount  *int   `json:"discount"`
	Customer  *int64 `json:"customer"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

var requiredKeys = []string{"name", "type", "discount", "customer", "start_date", "end_date"}

// Serialize converts the promotion into its wire document.
func (p Promotion) Serialize() Document {
	return Document{
		ID:        p.ID,
		Name:      p.Name,
		Type:      p.Type.String(),
		Discount:  p.Discount,
		Customer:  p.Customer,
		StartDate: p.StartDate.Format(DateLayout),
		EndDate:   p.EndDate.Format(DateLayout),
	}
}

// Deserialize builds a promotion from a JSON request body. Every key of the
// document except id must be present; discount and customer may be null.
// The result is validated before it is returned.
func Deserialize(body []byte) (Promotion, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return Promotion{}, invalid("body of request contained bad or no data")
	}

	for _, key := range requiredKeys {
		if _, ok := fields[key]; !ok {
			return Promotion{}, invalid("missing %s", key)
		}
	}

	var p Promotion
	var err error

	if p.Name, err = decodeString(fields["name"]); err != nil {
		return Promotion{}, invalid("name must be a string")
	}

	typeName, err := decodeString(fields["type"])
	if err != nil {
		return Promotion{}, invalid("type must be the name of a promotion type")
	}
	t, ok := ParseType(typeName)
	if !ok {
		return Promotion{}, invalid("unknown type %q", typeName)
	}
	p.Type = t

	discount, err := decodeOptionalInt(fields["discount"])
	if err != nil {
		return Promotion{}, invalid("discount must be an integer or null")
	}
	if discount != nil {
		if *discount > math.MaxInt32 || *discount < math.MinInt32 {
			return Promotion{}, invalid("discount is out of range")
		}
		d := int(*discount)
		p.Discount = &d
	}

	if p.Customer, err = decodeOptionalInt(fields["customer"]); err != nil {
		return Promotion{}, invalid("customer must be an integer or null")
	}

	if p.StartDate, err = decodeDate(fields["start_date"]); err != nil {
		return Promotion{}, invalid("start_date must be a YYYY-MM-DD date")
	}
	if p.EndDate, err = decodeDate(fields["end_date"]); err != nil {
		return Promotion{}, invalid("end_date must be a YYYY-MM-DD date")
	}

	if err := Validate(p); err != nil {
		return Promotion{}, err
	}
	return p, nil
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func decodeOptionalInt(raw json.RawMessage) (*int64, error) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return &v, nil
	}

	var v int64
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeDate(raw json.RawMessage) (time.Time, error) {
	s, err := decodeString(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ParseDate(s)
}
