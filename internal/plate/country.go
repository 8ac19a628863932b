package plate

import (
	"fmt"
	"strings"
)

// Country is a plate-issuing country. The zero value is unset.
type Country int

const (
	Germany Country = iota + 1
	Austria
	Belgium
	Bulgaria
	CzechRepublic
	Slovenia
	Spain
	Estonia
	Finland
	France
	Italy
	Luxembourg
	Malta
	Netherlands
	Portugal
	Romania
)

type countryInfo struct {
	name string
	// D is a digit, L a plate letter, anything else is copied verbatim.
	template string
}

var countryTable = map[Country]countryInfo{
	Germany:       {"Germany", "DD DD LLL"},
	Austria:       {"Austria", "L DDD LL"},
	Belgium:       {"Belgium", "D-LLL-DDD"},
	Bulgaria:      {"Bulgaria", "LL DDDD LL"},
	CzechRepublic: {"Czech Republic", "DLD DDDD"},
	Slovenia:      {"Slovenia", "LL DD-DLL"},
	Spain:         {"Spain", "DDDD LLL"},
	Estonia:       {"Estonia", "DDD LLL"},
	Finland:       {"Finland", "DDDD-LLL"},
	France:        {"France", "LL-DDD-LL"},
	Italy:         {"Italy", "LL DDDLL"},
	Luxembourg:    {"Luxembourg", "LL DDD"},
	Malta:         {"Malta", "LLL DDD"},
	Netherlands:   {"Netherlands", "LL-LL-DD"},
	Portugal:      {"Portugal", "DD-DD-LL"},
	Romania:       {"Romania", "LL DDLLL"},
}

// Countries returns every supported country in declaration order.
func Countries() []Country {
	out := make([]Country, 0, len(countryTable))
	for c := Germany; c <= Romania; c++ {
		out = append(out, c)
	}
	return out
}

func (c Country) Valid() bool {
	_, ok := countryTable[c]
	return ok
}

func (c Country) String() string {
	if info, ok := countryTable[c]; ok {
		return info.name
	}
	return fmt.Sprintf("Country(%d)", int(c))
}

// Template returns the plate layout for c, or "" for an unknown country.
func (c Country) Template() string {
	return countryTable[c].template
}

// ParseCountry resolves an English country name. Case, spaces, hyphens and
// underscores are ignored, so "czech_republic" and "CzechRepublic" both work.
func ParseCountry(name string) (Country, error) {
	key := foldName(name)
	for _, c := range Countries() {
		if foldName(c.String()) == key {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown country %q", ErrInvalidArgument, name)
}

func (c Country) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: unknown country %d", ErrInvalidArgument, int(c))
	}
	return []byte(c.String()), nil
}

func (c *Country) UnmarshalText(text []byte) error {
	parsed, err := ParseCountry(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func foldName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}
