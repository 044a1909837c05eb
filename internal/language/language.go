package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// bibliographic maps ISO 639-2/B codes, which older authoring tools write,
// to their terminology forms.
var bibliographic = map[string]string{
	"alb": "sqi",
	"arm": "hye",
	"baq": "eus",
	"bur": "mya",
	"chi": "zho",
	"cze": "ces",
	"dut": "nld",
	"fre": "fra",
	"geo": "kat",
	"ger": "deu",
	"gre": "ell",
	"ice": "isl",
	"mac": "mkd",
	"may": "msa",
	"per": "fas",
	"rum": "ron",
	"slo": "slk",
	"wel": "cym",
}

// special codes have no entry in the CLDR display tables.
var special = map[string]string{
	"und": "Undetermined",
	"mul": "Multiple languages",
	"mis": "Uncoded language",
	"zxx": "No linguistic content",
}

// Normalize cleans a code read from disc metadata: NUL padding and spaces are
// removed and the result is lowercased. Unknown codes are kept as-is.
func Normalize(code string) string {
	code = strings.TrimRight(code, "\x00 ")
	return strings.ToLower(strings.TrimSpace(code))
}

// Terminology returns the ISO 639-2/T form of a normalized code.
func Terminology(code string) string {
	code = Normalize(code)
	if t, ok := bibliographic[code]; ok {
		return t
	}
	return code
}

// IsEnglish reports whether code is English in its 2- or 3-letter form.
func IsEnglish(code string) bool {
	switch Terminology(code) {
	case "eng", "en":
		return true
	}
	return false
}

// DisplayName returns the English name for a stream language. Empty codes are
// "Unknown"; codes x/text does not know are returned uppercased.
func DisplayName(code string) string {
	code = Terminology(code)
	if code == "" {
		return "Unknown"
	}
	if name, ok := special[code]; ok {
		return name
	}
	if len(code) == 2 || len(code) == 3 {
		if base, err := language.ParseBase(code); err == nil {
			if name := display.English.Languages().Name(base); name != "" {
				return name
			}
		}
	}
	return strings.ToUpper(code)
}
