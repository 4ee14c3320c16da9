package scanner

import (
	"strings"

	"github.com/steamscope/steamscope/internal/utils"
	"github.com/steamscope/steamscope/pkg/scrape"
	"github.com/steamscope/steamscope/pkg/steamapi"
)

// reconcile joins scraped rows to schema entries. The icon filename is the
// only identity both sides share: the page has no api_name and every text
// field is localized. Schema entries that share an icon file are broken
// apart by exact description, then by exact display name; rows that still
// cannot be pinned to one entry are discarded rather than guessed.
//
// Output is in schema order, one detail per schema entry. The page is the
// authority on unlock state; entries without a matching row stay locked.
func reconcile(schema []steamapi.SchemaAchievement, rows []scrape.Row) (details []AchievementDetail, discarded int) {
	byIcon := make(map[string][]int)
	for i, s := range schema {
		for _, u := range []string{s.IconURL, s.IconGrayURL} {
			if file := utils.LastPathSegment(u); file != "" {
				byIcon[file] = append(byIcon[file], i)
			}
		}
	}

	matched := make(map[int]*scrape.Row, len(rows))
	for ri := range rows {
		row := &rows[ri]
		file := utils.LastPathSegment(row.IconURL)
		idx := pickSchemaEntry(schema, uniqueInts(byIcon[file]), row)
		if idx < 0 {
			discarded++
			utils.Log.WithField("title", row.Title).WithField("icon", file).
				Warn("Discarding scraped row, no unambiguous schema match")
			continue
		}
		if _, taken := matched[idx]; taken {
			discarded++
			continue
		}
		matched[idx] = row
	}

	details = make([]AchievementDetail, 0, len(schema))
	for i, s := range schema {
		d := AchievementDetail{
			APIName:       s.Name,
			DisplayName:   s.DisplayName,
			Description:   s.Description,
			IconURL:       s.IconURL,
			Hidden:        s.Hidden,
			GlobalPercent: s.GlobalPercent,
		}
		if row, ok := matched[i]; ok {
			// Scraped text is localized; prefer it over the schema's.
			if row.Title != "" {
				d.DisplayName = row.Title
			}
			if row.Description != "" {
				d.Description = row.Description
			}
			d.Unlocked = row.Unlocked
			d.UnlockTime = row.UnlockTime
			d.ProgressNum = row.ProgressNum
			d.ProgressDen = row.ProgressDen
		}
		details = append(details, d)
	}
	return details, discarded
}

// pickSchemaEntry resolves a row to one schema index, or -1.
func pickSchemaEntry(schema []steamapi.SchemaAchievement, candidates []int, row *scrape.Row) int {
	switch len(candidates) {
	case 0:
		return -1
	case 1:
		return candidates[0]
	}

	byDesc := filterCandidates(schema, candidates, func(s steamapi.SchemaAchievement) bool {
		return s.Description != "" && equalText(s.Description, row.Description)
	})
	if len(byDesc) == 1 {
		return byDesc[0]
	}

	byName := filterCandidates(schema, candidates, func(s steamapi.SchemaAchievement) bool {
		return equalText(s.DisplayName, row.Title)
	})
	if len(byName) == 1 {
		return byName[0]
	}
	return -1
}

func filterCandidates(schema []steamapi.SchemaAchievement, candidates []int, keep func(steamapi.SchemaAchievement) bool) []int {
	var out []int
	for _, i := range candidates {
		if keep(schema[i]) {
			out = append(out, i)
		}
	}
	return out
}

func equalText(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// uniqueInts preserves order while dropping duplicates; an entry whose color
// and gray icons are the same file would otherwise appear twice.
func uniqueInts(in []int) []int {
	seen := make(map[int]struct{}, len(in))
	out := in[:0:0]
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
