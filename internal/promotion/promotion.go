package promotion

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of promotion dates.
const DateLayout = "2006-01-02"

// MaxNameLength mirrors the width of the name column.
const MaxNameLength = 63

// Type enumerates the supported promotion kinds.
type Type int

const (
	BuyOneGetOne    Type = 0
	PercentDiscount Type = 1
	FreeShipping    Type = 2
	VIP             Type = 3
	Unknown         Type = 9
)

var typeNames = map[Type]string{
	BuyOneGetOne:    "BUY_ONE_GET_ONE",
	PercentDiscount: "PERCENT_DISCOUNT",
	FreeShipping:    "FREE_SHIPPING",
	VIP:             "VIP",
	Unknown:         "UNKNOWN",
}

// Types returns every known promotion type in declaration order.
func Types() []Type {
	return []Type{BuyOneGetOne, PercentDiscount, FreeShipping, VIP, Unknown}
}

// String returns the enum name used on the wire and in storage.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType resolves a type by its enum name.
func ParseType(name string) (Type, bool) {
	for t, n := range typeNames {
		if n == name {
			return t, true
		}
	}
	return Unknown, false
}

// Promotion is a discount rule offered to shoppers for a bounded period.
type Promotion struct {
	ID        int64     `validate:"gte=0"`
	Name      string    `validate:"required,max=63"`
	Type      Type      `validate:"oneof=0 1 2 3 9"`
	Discount  *int      `validate:"omitempty,min=0,max=100"`
	Customer  *int64    `validate:"omitempty,gt=0"`
	StartDate time.Time `validate:"required"`
	EndDate   time.Time `validate:"required,gtefield=StartDate"`
}

// Cancel ends the promotion early by collapsing its window to the start date.
func (p *Promotion) Cancel() {
	p.EndDate = p.StartDate
}

func (p Promotion) String() string {
	return fmt.Sprintf("<Promotion %q id=[%d]>", p.Name, p.ID)
}

// ParseDate parses a YYYY-MM-DD date into a UTC midnight timestamp.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return d, nil
}
