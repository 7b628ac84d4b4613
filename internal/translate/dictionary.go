package translate

import (
	"sort"
	"strings"
)

// Dictionary substitutes known terms when no provider is reachable.
type Dictionary struct {
	terms    map[string]string
	ordered  []string // longest first
	replacer *strings.Replacer
}

// DefaultTerms covers words that recur in the default channels.
var DefaultTerms = map[string]string{
	// Hebrew
	"צה\"ל":         "IDF",
	"צהל":           "IDF",
	"ישראל":         "Israel",
	"ירושלים":       "Jerusalem",
	"תל אביב":       "Tel Aviv",
	"עזה":           "Gaza",
	"לבנון":         "Lebanon",
	"סוריה":         "Syria",
	"איראן":         "Iran",
	"חמאס":          "Hamas",
	"חיזבאללה":      "Hezbollah",
	"טיל":           "missile",
	"טילים":         "missiles",
	"רקטה":          "rocket",
	"רקטות":         "rockets",
	"אזעקה":         "siren",
	"אזעקות":        "sirens",
	"צבע אדום":      "Red Alert",
	"פיקוד העורף":   "Home Front Command",
	"פצועים":        "wounded",
	"הרוגים":        "killed",
	"מחבל":          "terrorist",
	"פיגוע":         "attack",
	"דובר צה\"ל":    "IDF Spokesperson",
	"ראש הממשלה":    "Prime Minister",
	"שר הביטחון":    "Defense Minister",
	"מבזק":          "breaking",
	"עדכון":         "update",
	"דיווח":         "report",
	"יירוט":         "interception",
	"כיפת ברזל":     "Iron Dome",
	"הצפון":         "the north",
	"הדרום":         "the south",
	"יהודה ושומרון": "Judea and Samaria",
	// Arabic
	"إسرائيل": "Israel",
	"غزة":     "Gaza",
	"لبنان":   "Lebanon",
	"سوريا":   "Syria",
	"إيران":   "Iran",
	"حماس":    "Hamas",
	"حزب الله": "Hezbollah",
	"صاروخ":   "missile",
	"صواريخ":  "missiles",
	"القدس":   "Jerusalem",
	"عاجل":    "urgent",
	"شهداء":   "martyrs",
	"جرحى":    "wounded",
	"الجيش":   "the army",
}

// NewDictionary builds a dictionary from terms.
func NewDictionary(terms map[string]string) *Dictionary {
	d := &Dictionary{terms: make(map[string]string, len(terms))}
	for k, v := range terms {
		if k == "" || v == "" {
			continue
		}
		d.terms[k] = v
		d.ordered = append(d.ordered, k)
	}
	sort.Slice(d.ordered, func(i, j int) bool {
		li, lj := len([]rune(d.ordered[i])), len([]rune(d.ordered[j]))
		if li != lj {
			return li > lj
		}
		return d.ordered[i] < d.ordered[j]
	})
	pairs := make([]string, 0, 2*len(d.ordered))
	for _, k := range d.ordered {
		pairs = append(pairs, k, "["+d.terms[k]+"]")
	}
	d.replacer = strings.NewReplacer(pairs...)
	return d
}

// Substitute replaces every known term in text with its bracketed English
// equivalent, trying longer terms first. It reports whether anything matched.
func (d *Dictionary) Substitute(text string) (string, bool) {
	if len(d.ordered) == 0 {
		return text, false
	}
	out := d.replacer.Replace(text)
	return out, out != text
}
