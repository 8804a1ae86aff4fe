package promotion

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func mustDate(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := ParseDate(raw)
	if err != nil {
		t.Fatalf("parse date %q: %v", raw, err)
	}
	return d
}

func validBody(overrides map[string]any) []byte {
	body := map[string]any{
		"name":       "summer-sale",
		"type":       "PERCENT_DISCOUNT",
		"discount":   30,
		"customer":   nil,
		"start_date": "2022-07-19",
		"end_date":   "2022-10-20",
	}
	for k, v := range overrides {
		if v == deleteKey {
			delete(body, k)
			continue
		}
		body[k] = v
	}
	data, _ := json.Marshal(body)
	return data
}

const deleteKey = "\x00delete"

func TestDeserializeValidPayload(t *testing.T) {
	p, err := Deserialize(validBody(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "summer-sale" || p.Type != PercentDiscount {
		t.Fatalf("unexpected promotion: %+v", p)
	}
	if p.Discount == nil || *p.Discount != 30 {
		t.Fatalf("expected discount 30, got %v", p.Discount)
	}
	if p.Customer != nil {
		t.Fatalf("expected nil customer, got %d", *p.Customer)
	}
	if !p.StartDate.Equal(mustDate(t, "2022-07-19")) {
		t.Fatalf("unexpected start date %s", p.StartDate)
	}
}

func TestDeserializeAcceptsNumericStrings(t *testing.T) {
	p, err := Deserialize(validBody(map[string]any{"customer": "123", "discount": ""}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Customer == nil || *p.Customer != 123 {
		t.Fatalf("expected customer 123, got %v", p.Customer)
	}
	if p.Discount != nil {
		t.Fatalf("expected empty discount to decode as null")
	}
}

func TestDeserializeRejectsBadPayloads(t *testing.T) {
	cases := map[string]struct {
		body    []byte
		message string
	}{
		"missing name":      {validBody(map[string]any{"name": deleteKey}), "missing name"},
		"missing end date":  {validBody(map[string]any{"end_date": deleteKey}), "missing end_date"},
		"empty object":      {[]byte(`{}`), "missing name"},
		"not an object":     {[]byte(`"promo"`), "bad or no data"},
		"null body":         {[]byte(`null`), "bad or no data"},
		"numeric type":      {validBody(map[string]any{"type": 2}), "type"},
		"unknown type":      {validBody(map[string]any{"type": "HALF_OFF"}), "unknown type"},
		"customer letters":  {validBody(map[string]any{"customer": "x"}), "customer"},
		"fractional":        {validBody(map[string]any{"discount": 12.5}), "discount"},
		"discount too high": {validBody(map[string]any{"discount": 101}), "discount"},
		"bad date":          {validBody(map[string]any{"start_date": "19/07/2022"}), "start_date"},
		"ends before start": {validBody(map[string]any{"end_date": "2022-07-01"}), "end_date"},
		"empty name":        {validBody(map[string]any{"name": ""}), "name is required"},
		"long name":         {validBody(map[string]any{"name": strings.Repeat("n", MaxNameLength+1)}), "name must be at most"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Deserialize(tc.body)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !IsValidationError(err) {
				t.Fatalf("expected DataValidationError, got %T", err)
			}
			if !strings.Contains(err.Error(), tc.message) {
				t.Fatalf("expected message containing %q, got %q", tc.message, err.Error())
			}
			if !strings.HasPrefix(err.Error(), "Invalid Promotion: ") {
				t.Fatalf("unexpected message prefix: %q", err.Error())
			}
		})
	}
}

func TestSerializeUsesEnumNamesAndDates(t *testing.T) {
	customer := int64(7)
	p := Promotion{
		ID:        12,
		Name:      "vip",
		Type:      VIP,
		Customer:  &customer,
		StartDate: mustDate(t, "2022-07-01"),
		EndDate:   mustDate(t, "2022-10-31"),
	}

	doc := p.Serialize()
	if doc.Type != "VIP" || doc.StartDate != "2022-07-01" || doc.EndDate != "2022-10-31" {
		t.Fatalf("unexpected document: %+v", doc)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"discount":null`) {
		t.Fatalf("expected null discount in %s", data)
	}
}

func TestCancelCollapsesWindow(t *testing.T) {
	p := Promotion{StartDate: mustDate(t, "2022-07-01"), EndDate: mustDate(t, "2022-10-31")}
	p.Cancel()
	if !p.EndDate.Equal(p.StartDate) {
		t.Fatalf("expected end date %s, got %s", p.StartDate, p.EndDate)
	}
}

func TestParseType(t *testing.T) {
	for _, typ := range Types() {
		got, ok := ParseType(typ.String())
		if !ok || got != typ {
			t.Fatalf("round trip failed for %s", typ)
		}
	}
	if _, ok := ParseType("X"); ok {
		t.Fatalf("expected unknown name to be rejected")
	}
}
