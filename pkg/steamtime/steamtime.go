// Package steamtime parses the free-text unlock timestamps Steam renders on
// community stats pages. The pages carry no machine-readable time attribute:
// the date is written out in the viewer's language and the time is either
// 24-hour or 12-hour with a meridiem marker, so parsing has to work from the
// text alone, across every UI language Steam supports.
//
// All rendered times are wall-clock times in Steam's base zone (US Pacific),
// regardless of the viewer's locale. Parse converts to UTC.
package steamtime

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Pacific is the fixed base zone in which Steam renders all unlock
// timestamps. If the IANA database is unavailable we fall back to a fixed
// UTC-8 zone; an hour of DST drift beats losing every timestamp.
var Pacific = loadPacific()

func loadPacific() *time.Location {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		return time.FixedZone("PST", -8*3600)
	}
	return loc
}

const (
	// A yearless date more than this far in the future is assumed to be
	// from the previous year. Two days absorbs clock skew and the
	// Pacific-to-viewer offset without swallowing genuinely recent unlocks.
	futureTolerance = 48 * time.Hour
)

var (
	timeTokenRe = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	cjkDateRe   = regexp.MustCompile(`(?:(\d{4})\s*[年년])?\s*(\d{1,2})\s*[月월]\s*(\d{1,2})\s*[日일]?`)
	spaceRe     = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// meridiemMarkers maps the markers Steam places before or after the time
// token to an am/pm flag. Keys are matched lowercased and dot-stripped.
var meridiemMarkers = map[string]bool{
	"am": false, "pm": true,
	"vorm": false, "nachm": true,
	"上午": false, "下午": true,
	"午前": false, "午後": true,
	"오전": false, "오후": true,
}

// Parse interprets text as a Steam unlock timestamp rendered in the given
// Steam language and returns the corresponding UTC instant. now supplies the
// reference for yearless dates and must be a real wall-clock time. The second
// return is false when no timestamp could be recovered; malformed input is
// never an error.
func Parse(text, language string, now time.Time) (time.Time, bool) {
	text = normalizeSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	hour, minute, dateFrag, ok := splitTimeToken(text)
	if !ok {
		return time.Time{}, false
	}

	if y, m, d, ok := parseCJKDate(dateFrag); ok {
		return assemble(y, m, d, hour, minute, now), true
	}

	if y, m, d, ok := parseTokenizedDate(dateFrag); ok {
		return assemble(y, m, d, hour, minute, now), true
	}

	if y, m, d, ok := parseNumericDate(dateFrag, language); ok {
		return assemble(y, m, d, hour, minute, now), true
	}

	return time.Time{}, false
}

func normalizeSpace(s string) string {
	// Steam mixes NBSP and narrow NBSP into rendered dates.
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// splitTimeToken locates the trailing time token and returns the clock
// reading plus everything before the token as the date fragment. The
// meridiem marker may sit directly before the token, directly after it, or
// be glued onto the minutes ("2:30pm").
func splitTimeToken(text string) (hour, minute int, dateFrag string, ok bool) {
	locs := timeTokenRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return 0, 0, "", false
	}
	loc := locs[len(locs)-1]

	hour, _ = strconv.Atoi(text[loc[2]:loc[3]])
	minute, _ = strconv.Atoi(text[loc[4]:loc[5]])
	if hour > 23 || minute > 59 {
		return 0, 0, "", false
	}

	before := strings.TrimSpace(text[:loc[0]])
	after := strings.TrimSpace(text[loc[1]:])

	pm, found := trailingMeridiem(after)
	if !found {
		pm, found = leadingMeridiem(&before)
	}
	if found {
		if hour == 12 && !pm {
			hour = 0
		} else if hour < 12 && pm {
			hour += 12
		}
	}

	return hour, minute, before, true
}

func trailingMeridiem(after string) (pm, found bool) {
	if after == "" {
		return false, false
	}
	first := strings.Fields(after)[0]
	pm, found = meridiemMarkers[cleanToken(first)]
	return pm, found
}

func leadingMeridiem(before *string) (pm, found bool) {
	fields := strings.Fields(*before)
	if len(fields) == 0 {
		return false, false
	}
	last := fields[len(fields)-1]
	if pm, ok := meridiemMarkers[cleanToken(last)]; ok {
		*before = strings.TrimSpace(strings.TrimSuffix(*before, last))
		return pm, true
	}
	return false, false
}

func cleanToken(tok string) string {
	return strings.Trim(strings.ToLower(tok), ".,@:;()")
}

// parseCJKDate handles the numeral year/month/day forms used by the Chinese,
// Japanese and Korean UI ("2020年3月12日", "3월 12일").
func parseCJKDate(frag string) (year int, month time.Month, day int, ok bool) {
	m := cjkDateRe.FindStringSubmatch(frag)
	if m == nil {
		return 0, 0, 0, false
	}
	if m[1] != "" {
		year, _ = strconv.Atoi(m[1])
	}
	mm, _ := strconv.Atoi(m[2])
	dd, _ := strconv.Atoi(m[3])
	if mm < 1 || mm > 12 || dd < 1 || dd > 31 {
		return 0, 0, 0, false
	}
	return year, time.Month(mm), dd, true
}

type token struct {
	text  string
	num   int
	isNum bool
}

// tokenize splits the date fragment into digit runs and word runs. Letters
// and combining marks stay together; everything else separates.
func tokenize(frag string) []token {
	var toks []token
	var cur strings.Builder
	curNum := false

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		t := token{text: cur.String()}
		if curNum {
			t.num, _ = strconv.Atoi(t.text)
			t.isNum = true
		}
		toks = append(toks, t)
		cur.Reset()
	}

	for _, r := range frag {
		switch {
		case r >= '0' && r <= '9':
			if cur.Len() > 0 && !curNum {
				flush()
			}
			curNum = true
			cur.WriteRune(r)
		case unicode.IsLetter(r) || unicode.Is(unicode.Mn, r) || r == '.':
			// Thai abbreviations carry interior dots (ม.ค.), keep them.
			if cur.Len() > 0 && curNum {
				flush()
			}
			curNum = false
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return toks
}

// parseTokenizedDate is the primary date path: find the month name, then the
// nearest plausible day and year tokens around it.
func parseTokenizedDate(frag string) (year int, month time.Month, day int, ok bool) {
	toks := tokenize(frag)
	toks = trimNoiseWords(toks)
	if len(toks) == 0 {
		return 0, 0, 0, false
	}

	monthIdx := -1
	for i, t := range toks {
		if t.isNum {
			continue
		}
		word := cleanToken(t.text)
		// Vietnamese writes the month as a numbered marker: "tháng 3".
		if word == "tháng" || word == "thang" || word == "thg" {
			if i+1 < len(toks) && toks[i+1].isNum && toks[i+1].num >= 1 && toks[i+1].num <= 12 {
				month = time.Month(toks[i+1].num)
				monthIdx = i + 1
				// The marker consumed the numeric token, drop it from
				// day/year candidacy.
				toks[i+1].isNum = false
				break
			}
			continue
		}
		if m, found := lookupMonth(word); found {
			month = m
			monthIdx = i
			break
		}
	}
	if monthIdx < 0 {
		return 0, 0, 0, false
	}

	day = nearestDay(toks, monthIdx)
	if day == 0 {
		return 0, 0, 0, false
	}
	year = nearestYear(toks, monthIdx)
	return year, month, day, true
}

// trimNoiseWords strips non-month word tokens from both ends of the token
// run ("Unlocked", "Freigeschaltet am", trailing "um", "klo", "alle" and the
// like), leaving the date core intact.
func trimNoiseWords(toks []token) []token {
	isNoise := func(t token) bool {
		if t.isNum {
			return false
		}
		word := cleanToken(t.text)
		if word == "tháng" || word == "thang" || word == "thg" {
			return false
		}
		_, isMonth := lookupMonth(word)
		return !isMonth
	}
	for len(toks) > 0 && isNoise(toks[0]) {
		toks = toks[1:]
	}
	for len(toks) > 0 && isNoise(toks[len(toks)-1]) {
		toks = toks[:len(toks)-1]
	}
	return toks
}

// nearestDay finds the 1..31-valued numeric token closest to the month,
// searching outward; at equal distance the token before the month wins,
// matching the day-first word order of most supported locales.
func nearestDay(toks []token, monthIdx int) int {
	isDay := func(i int) bool {
		return i >= 0 && i < len(toks) && toks[i].isNum &&
			toks[i].num >= 1 && toks[i].num <= 31 && len(toks[i].text) <= 2
	}
	for dist := 1; dist < len(toks); dist++ {
		if isDay(monthIdx - dist) {
			return toks[monthIdx-dist].num
		}
		if isDay(monthIdx + dist) {
			return toks[monthIdx+dist].num
		}
	}
	return 0
}

// nearestYear finds the 1900..3000-valued token nearest after the month,
// else nearest before. Zero means no year token was present.
func nearestYear(toks []token, monthIdx int) int {
	isYear := func(i int) bool {
		return i >= 0 && i < len(toks) && toks[i].isNum &&
			toks[i].num >= 1900 && toks[i].num <= 3000
	}
	for i := monthIdx + 1; i < len(toks); i++ {
		if isYear(i) {
			return toks[i].num
		}
	}
	for i := monthIdx - 1; i >= 0; i-- {
		if isYear(i) {
			return toks[i].num
		}
	}
	return 0
}

// parseNumericDate is the generic fallback for all-numeric dates. Month
// order follows the language hint (US-style month-first only for English),
// then every supported locale's convention is tried, the ISO form last.
func parseNumericDate(frag, language string) (year int, month time.Month, day int, ok bool) {
	toks := tokenize(frag)
	var nums []token
	for _, t := range toks {
		if t.isNum {
			nums = append(nums, t)
		}
	}
	if len(nums) < 2 {
		return 0, 0, 0, false
	}

	// ISO-style "2020-03-12".
	if len(nums) >= 3 && nums[0].num >= 1900 && nums[0].num <= 3000 {
		m, d := nums[1].num, nums[2].num
		if m >= 1 && m <= 12 && d >= 1 && d <= 31 {
			return nums[0].num, time.Month(m), d, true
		}
	}

	first, second := nums[0].num, nums[1].num
	if len(nums) >= 3 && nums[2].num >= 1900 && nums[2].num <= 3000 {
		year = nums[2].num
	}

	monthFirst := language == "english"
	a, b := first, second
	if monthFirst {
		a, b = second, first
	}
	// a = day candidate, b = month candidate; swap if only the other
	// reading is valid.
	if b >= 1 && b <= 12 && a >= 1 && a <= 31 {
		return year, time.Month(b), a, true
	}
	if a >= 1 && a <= 12 && b >= 1 && b <= 31 {
		return year, time.Month(a), b, true
	}
	return 0, 0, 0, false
}

// assemble builds the Pacific wall-clock instant and converts to UTC,
// applying the previous-year rule to yearless dates that land in the future.
func assemble(year int, month time.Month, day, hour, minute int, now time.Time) time.Time {
	nowPacific := now.In(Pacific)
	inferred := year == 0
	if inferred {
		year = nowPacific.Year()
	}
	t := time.Date(year, month, day, hour, minute, 0, 0, Pacific)
	if inferred && t.After(nowPacific.Add(futureTolerance)) {
		t = time.Date(year-1, month, day, hour, minute, 0, 0, Pacific)
	}
	return t.UTC()
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldDiacritics strips combining marks so "März" matches a table built from
// "marz" and vice versa. Errors degrade to the input unchanged.
func foldDiacritics(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return s
	}
	return strings.ToLower(out)
}
