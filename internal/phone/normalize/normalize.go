// Package normalize derives the read-only representations of a stored
// (number, country) pair. It is a pure function of its inputs: no I/O, no
// state, identical inputs always produce identical outputs.
package normalize

import (
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"

	dErrors "phones/pkg/domain-errors"
)

// Normalized carries every derived field served on a PhoneView.
type Normalized struct {
	CountryCallingCode string
	National           string
	International      string
	URI                string
	NumberType         string
}

// Normalize parses number under country's numbering plan and renders the
// derived forms. It fails with an invalid-input error when the pair cannot be
// parsed; on failure no partially-filled result is returned. An unknown
// calling code yields an empty string, never a missing field.
func Normalize(number, country string) (Normalized, error) {
	parsed, err := phonenumbers.Parse(number, strings.ToUpper(country))
	if err != nil {
		return Normalized{}, dErrors.Wrap(err, dErrors.CodeInvalidInput,
			"phone number "+number+" is not valid for country "+country)
	}

	callingCode := ""
	if cc := parsed.GetCountryCode(); cc != 0 {
		callingCode = strconv.Itoa(int(cc))
	}

	return Normalized{
		CountryCallingCode: callingCode,
		National:           phonenumbers.Format(parsed, phonenumbers.NATIONAL),
		International:      phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL),
		URI:                phonenumbers.Format(parsed, phonenumbers.RFC3966),
		NumberType:         numberTypeName(phonenumbers.GetNumberType(parsed)),
	}, nil
}

func numberTypeName(t phonenumbers.PhoneNumberType) string {
	switch t {
	case phonenumbers.FIXED_LINE:
		return "fixedLine"
	case phonenumbers.MOBILE:
		return "mobile"
	case phonenumbers.FIXED_LINE_OR_MOBILE:
		return "fixedLineOrMobile"
	case phonenumbers.TOLL_FREE:
		return "tollFree"
	case phonenumbers.PREMIUM_RATE:
		return "premiumRate"
	case phonenumbers.SHARED_COST:
		return "sharedCost"
	case phonenumbers.VOIP:
		return "voip"
	case phonenumbers.PERSONAL_NUMBER:
		return "personalNumber"
	case phonenumbers.PAGER:
		return "pager"
	case phonenumbers.UAN:
		return "uan"
	case phonenumbers.VOICEMAIL:
		return "voicemail"
	default:
		return "unknown"
	}
}
