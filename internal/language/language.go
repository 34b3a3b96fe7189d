package language

import "strings"

type entry struct {
	code2   string // ISO 639-1 (2-letter)
	code3   string // ISO 639-2 primary (3-letter)
	alt3    string // ISO 639-2 alternate (e.g. "fre" vs "fra")
	display string
	word    string // full word form (e.g. "english")
}

var languages = []entry{
	{"en", "eng", "", "English", "english"},
	{"es", "spa", "", "Spanish", "spanish"},
	{"fr", "fra", "fre", "French", "french"},
	{"de", "deu", "ger", "German", "german"},
	{"it", "ita", "", "Italian", "italian"},
	{"pt", "por", "", "Portuguese", "portuguese"},
	{"ja", "jpn", "", "Japanese", "japanese"},
	{"ko", "kor", "", "Korean", "korean"},
	{"zh", "zho", "chi", "Chinese", "chinese"},
	{"ru", "rus", "", "Russian", "russian"},
	{"ar", "ara", "", "Arabic", "arabic"},
	{"hi", "hin", "", "Hindi", "hindi"},
	{"nl", "nld", "dut", "Dutch", "dutch"},
	{"pl", "pol", "", "Polish", "polish"},
	{"sv", "swe", "", "Swedish", "swedish"},
	{"da", "dan", "", "Danish", "danish"},
	{"no", "nor", "", "Norwegian", "norwegian"},
	{"fi", "fin", "", "Finnish", "finnish"},
}

var index map[string]*entry

func init() {
	index = make(map[string]*entry, len(languages)*4)
	for i := range languages {
		e := &languages[i]
		index[e.code2] = e
		index[e.code3] = e
		if e.alt3 != "" {
			index[e.alt3] = e
		}
		index[e.word] = e
	}
}

func lookup(code string) *entry {
	return index[strings.ToLower(strings.TrimSpace(code))]
}

// ToISO2 converts any recognized language code or name to ISO 639-1.
// Unrecognized 2-letter codes pass through; anything else unrecognized
// yields the empty string.
func ToISO2(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if e := lookup(code); e != nil {
		return e.code2
	}
	if len(code) == 2 {
		return code
	}
	return ""
}

// DisplayName returns a human-readable name for any recognized code, the
// uppercased input for unrecognized codes, and "Unknown" for empty input.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	if e := lookup(code); e != nil {
		return e.display
	}
	return strings.ToUpper(strings.TrimSpace(code))
}
