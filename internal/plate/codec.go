// Package plate synthesizes and recognises European licence plates.
package plate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidFormat   = errors.New("invalid plate format")
)

const (
	// Validation is wider than synthesis: 0 is accepted so that plates issued
	// elsewhere still resolve.
	digitClass  = "[0-9]"
	letterClass = "[A-HJ-NP-Z]"
)

type matcher struct {
	country Country
	pattern *regexp.Regexp
}

// Codec maps countries to plate strings and back.
type Codec struct {
	token    *Token
	matchers []matcher
}

// NewCodec builds a codec whose synthesized plates draw from token. A nil
// token uses the process-wide generator.
func NewCodec(token *Token) *Codec {
	if token == nil {
		token = NewToken(nil)
	}

	countries := Countries()
	matchers := make([]matcher, 0, len(countries))
	for _, c := range countries {
		matchers = append(matchers, matcher{
			country: c,
			pattern: regexp.MustCompile(patternFor(c.Template())),
		})
	}

	return &Codec{token: token, matchers: matchers}
}

// Synthesize returns a random plate laid out for country.
func (c *Codec) Synthesize(country Country) (string, error) {
	if !country.Valid() {
		return "", fmt.Errorf("%w: unknown country %d", ErrInvalidArgument, int(country))
	}

	var sb strings.Builder
	for _, run := range splitRuns(country.Template()) {
		var (
			part string
			err  error
		)
		switch run[0] {
		case 'D':
			part, err = c.token.Digits(len(run))
		case 'L':
			part, err = c.token.Letters(len(run))
		default:
			part = run
		}
		if err != nil {
			return "", err
		}
		sb.WriteString(part)
	}
	return sb.String(), nil
}

// CountryOf reports which country's layout plate follows. Matching is
// case-sensitive and tries countries in declaration order.
func (c *Codec) CountryOf(plate string) (Country, error) {
	for _, m := range c.matchers {
		if m.pattern.MatchString(plate) {
			return m.country, nil
		}
	}
	return 0, fmt.Errorf("%w: %q matches no supported country", ErrInvalidFormat, plate)
}

// splitRuns cuts a template into runs of the same placeholder or literal
// character, e.g. "DD-LL" -> ["DD" "-" "LL"].
func splitRuns(template string) []string {
	var runs []string
	for i := 0; i < len(template); {
		j := i + 1
		for j < len(template) && template[j] == template[i] {
			j++
		}
		runs = append(runs, template[i:j])
		i = j
	}
	return runs
}

func patternFor(template string) string {
	var sb strings.Builder
	sb.WriteByte('^')
	for _, run := range splitRuns(template) {
		switch run[0] {
		case 'D':
			fmt.Fprintf(&sb, "%s{%d}", digitClass, len(run))
		case 'L':
			fmt.Fprintf(&sb, "%s{%d}", letterClass, len(run))
		default:
			sb.WriteString(regexp.QuoteMeta(run))
		}
	}
	sb.WriteByte('$')
	return sb.String()
}
