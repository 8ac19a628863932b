package parking

import (
	"fmt"
	"strings"

	"parking-facility/internal/plate"
)

// BaseRatePerMinute is what every vehicle pays before its kind surcharge.
const BaseRatePerMinute = 0.04

type Kind int

const (
	Bus Kind = iota + 1
	Car
	Van
	Motorcycle
)

var kindNames = map[Kind]string{
	Bus:        "Bus",
	Car:        "Car",
	Van:        "Van",
	Motorcycle: "Motorcycle",
}

var kindSurcharge = map[Kind]float64{
	Bus:        0.25,
	Van:        0.20,
	Car:        0,
	Motorcycle: 0,
}

// Kinds returns every vehicle kind in declaration order.
func Kinds() []Kind {
	return []Kind{Bus, Car, Van, Motorcycle}
}

func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Surcharge is the per-minute amount added to the base rate.
func (k Kind) Surcharge() float64 {
	return kindSurcharge[k]
}

// Surcharged reports whether the kind pays a size surcharge, which also puts
// it in the higher price-cap class.
func (k Kind) Surcharged() bool {
	return kindSurcharge[k] > 0
}

func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bus":
		return Bus, nil
	case "car":
		return Car, nil
	case "van":
		return Van, nil
	case "motorcycle", "moto":
		return Motorcycle, nil
	}
	return 0, fmt.Errorf("%w: unknown vehicle kind %q", ErrInvalidArgument, name)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: unknown vehicle kind %d", ErrInvalidArgument, int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

type Vehicle struct {
	Plate         string        `json:"plate"`
	Kind          Kind          `json:"kind"`
	Country       plate.Country `json:"country"`
	RatePerMinute float64       `json:"rate_per_minute"`
	Active        bool          `json:"active"`
}

var defaultCodec = plate.NewCodec(nil)

// NewVehicle registers a vehicle under an existing plate. The plate is
// upper-cased before its country is looked up.
func NewVehicle(kind Kind, registration string) (Vehicle, error) {
	if !kind.Valid() {
		return Vehicle{}, fmt.Errorf("%w: unknown vehicle kind %d", ErrInvalidArgument, int(kind))
	}

	normalized := NormalizePlate(registration)
	country, err := defaultCodec.CountryOf(normalized)
	if err != nil {
		return Vehicle{}, err
	}

	return Vehicle{
		Plate:         normalized,
		Kind:          kind,
		Country:       country,
		RatePerMinute: BaseRatePerMinute + kind.Surcharge(),
		Active:        true,
	}, nil
}

// SynthesizeVehicle issues a fresh plate for country. A nil codec uses the
// package default.
func SynthesizeVehicle(codec *plate.Codec, kind Kind, country plate.Country) (Vehicle, error) {
	if !kind.Valid() {
		return Vehicle{}, fmt.Errorf("%w: unknown vehicle kind %d", ErrInvalidArgument, int(kind))
	}
	if codec == nil {
		codec = defaultCodec
	}

	registration, err := codec.Synthesize(country)
	if err != nil {
		return Vehicle{}, err
	}

	return Vehicle{
		Plate:         registration,
		Kind:          kind,
		Country:       country,
		RatePerMinute: BaseRatePerMinute + kind.Surcharge(),
		Active:        true,
	}, nil
}

// RestoreVehicle rebuilds a persisted vehicle. The stored rate is kept as is.
func RestoreVehicle(registration string, kind Kind, ratePerMinute float64, active bool) (Vehicle, error) {
	if !kind.Valid() {
		return Vehicle{}, fmt.Errorf("%w: unknown vehicle kind %d", ErrInvalidArgument, int(kind))
	}

	normalized := NormalizePlate(registration)
	country, err := defaultCodec.CountryOf(normalized)
	if err != nil {
		return Vehicle{}, err
	}

	return Vehicle{
		Plate:         normalized,
		Kind:          kind,
		Country:       country,
		RatePerMinute: ratePerMinute,
		Active:        active,
	}, nil
}

// NormalizePlate is the canonical form used for keys and persistence.
func NormalizePlate(registration string) string {
	return strings.ToUpper(strings.TrimSpace(registration))
}

func (v Vehicle) String() string {
	return fmt.Sprintf("%s %s (%s) %.2f/min", v.Kind, v.Plate, v.Country, v.RatePerMinute)
}
