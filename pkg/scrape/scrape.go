// Package scrape extracts achievement rows from a community stats page.
// Two layouts exist in the wild: the modern card layout and a legacy table
// layout kept alive by older titles. Unlock state is determined positionally
// where possible, because Steam sorts unlocked achievements first and the
// "X of Y" header survives every locale, while per-row markers do not.
package scrape

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/steamscope/steamscope/internal/utils"
	"github.com/steamscope/steamscope/pkg/classify"
	"github.com/steamscope/steamscope/pkg/steamtime"
)

// Row is one scraped achievement row. Key is a best-effort composite used
// only for human debugging; the icon filename is the reconciliation
// identity.
type Row struct {
	Key         string
	Title       string
	Description string
	IconURL     string
	Unlocked    bool
	UnlockTime  *time.Time
	ProgressNum *int
	ProgressDen *int
}

// TimeParseFailure records an unlock-time fragment that could not be parsed.
// These feed the durable audit log so locale regressions can be triaged from
// the field.
type TimeParseFailure struct {
	Language    string
	GameName    string
	Achievement string
	RawText     string
}

var progressRe = regexp.MustCompile(`(\d[\d,.]*)\s*/\s*(\d[\d,.]*)`)

const unlockMarkerSelector = ".achieveUnlockTime"

// Parse walks the achievement rows of doc and returns the scraped rows in
// document order, plus any unlock-time parse failures. includeLocked keeps
// rows determined to be locked; language is the Steam language the page was
// requested in; now anchors yearless-date inference.
func Parse(doc *goquery.Document, includeLocked bool, language, gameName string, now time.Time) ([]Row, []TimeParseFailure) {
	sel := classify.Rows(doc)
	if sel.Length() == 0 {
		return nil, nil
	}

	unlockedCount, haveSummary := parseSummary(doc)

	var rows []Row
	var failures []TimeParseFailure

	sel.Each(func(i int, rowSel *goquery.Selection) {
		if classify.IsHiddenPlaceholder(rowSel) {
			return
		}

		row := Row{
			Title:       strings.TrimSpace(rowSel.Find("h3").First().Text()),
			Description: strings.TrimSpace(rowSel.Find("h5").First().Text()),
			IconURL:     resolveIcon(rowSel),
		}

		markerText := strings.TrimSpace(rowSel.Find(unlockMarkerSelector).First().Text())
		hasMarker := markerText != ""

		if haveSummary {
			row.Unlocked = i < unlockedCount
		} else {
			row.Unlocked = hasMarker
		}

		if hasMarker {
			if ts, ok := steamtime.Parse(markerText, language, now); ok {
				row.UnlockTime = &ts
			} else if haveSummary {
				// Unlock state is already known positionally; losing the
				// timestamp is a quality degradation, not a failure.
				utils.Log.Debug("unparseable unlock time for ", row.Title, ": ", markerText)
				failures = append(failures, TimeParseFailure{
					Language: language, GameName: gameName,
					Achievement: row.Title, RawText: markerText,
				})
			} else {
				// The marker was the only unlock signal for this row.
				utils.Log.Warn("unparseable unlock time for ", row.Title, " (no positional signal): ", markerText)
				failures = append(failures, TimeParseFailure{
					Language: language, GameName: gameName,
					Achievement: row.Title, RawText: markerText,
				})
			}
		}

		if num, den, ok := parseProgress(rowSel); ok {
			row.ProgressNum = &num
			row.ProgressDen = &den
		}

		row.Key = debugKey(row, markerText)

		if row.Unlocked || includeLocked {
			rows = append(rows, row)
		}
	})

	return rows, failures
}

// parseSummary reads the "X of Y achievements" header. The wording and word
// order vary by locale, so it takes the first two numeric tokens and treats
// the smaller as the unlocked count.
func parseSummary(doc *goquery.Document) (unlocked int, ok bool) {
	text := strings.TrimSpace(classify.Summary(doc).First().Text())
	if text == "" {
		return 0, false
	}
	nums := utils.FirstNumbers(text, 2)
	if len(nums) < 2 {
		return 0, false
	}
	if nums[0] <= nums[1] {
		return nums[0], true
	}
	return nums[1], true
}

// resolveIcon picks the achievement icon, skipping decorative backgrounds
// and transparent placeholders. The modern layout keeps the icon in its own
// holder; the legacy layout hangs it off the immediately preceding sibling
// block.
func resolveIcon(row *goquery.Selection) string {
	if src := iconFrom(row.Find(".achieveImgHolder img").First()); src != "" {
		return src
	}
	var found string
	row.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if src := iconFrom(img); src != "" {
			found = src
			return false
		}
		return true
	})
	if found != "" {
		return found
	}
	return iconFrom(row.Prev().Find("img").First())
}

func iconFrom(img *goquery.Selection) string {
	src, _ := img.Attr("src")
	src = strings.TrimSpace(src)
	if src == "" || strings.HasPrefix(src, "data:") {
		return ""
	}
	lower := strings.ToLower(src)
	if strings.Contains(lower, "trans.gif") || strings.Contains(lower, "spacer") || strings.Contains(lower, "blank.gif") {
		return ""
	}
	return src
}

// parseProgress extracts the "N / M" fragment rendered for stat-tracked
// achievements. The whole-row fallback works on a copy with the unlock
// marker removed: several locales render dates with slashes, and a
// "03/12/2020" in the marker is not a progress fragment.
func parseProgress(row *goquery.Selection) (num, den int, ok bool) {
	text := row.Find(".progressText, .achievementProgressBar").First().Text()
	if strings.TrimSpace(text) == "" {
		clone := row.Clone()
		clone.Find(unlockMarkerSelector).Remove()
		text = clone.Text()
	}
	m := progressRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	num = parseGroupedInt(m[1])
	den = parseGroupedInt(m[2])
	if den == 0 || num > den {
		return 0, 0, false
	}
	return num, den, true
}

func parseGroupedInt(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
		}
	}
	return n
}

func debugKey(row Row, markerText string) string {
	tail := row.Description
	if tail == "" {
		tail = markerText
	}
	return fmt.Sprintf("%s|%s", row.Title, tail)
}
