package steamtime

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var refNow = time.Date(2024, time.July, 15, 12, 0, 0, 0, time.UTC)

func TestParseLocaleRoundTrip(t *testing.T) {
	// Every rendering describes March 12 2020, 14:30 Pacific.
	want := time.Date(2020, time.March, 12, 14, 30, 0, 0, Pacific).UTC()

	cases := []struct {
		language string
		text     string
	}{
		{"english", "Unlocked 12 Mar, 2020 @ 2:30pm"},
		{"english", "Unlocked Mar 12, 2020 @ 2:30pm"},
		{"german", "Freigeschaltet: 12. März 2020 um 14:30 Uhr"},
		{"french", "Débloqué le 12 mars 2020 à 14:30"},
		{"italian", "Sbloccato in data 12 marzo 2020 alle 14:30"},
		{"spanish", "Desbloqueado el 12 de marzo de 2020 a las 14:30"},
		{"portuguese", "Alcançada em 12 de março de 2020 às 14:30"},
		{"dutch", "Ontgrendeld op 12 mrt 2020 om 14:30"},
		{"danish", "Låst op: 12. marts 2020 kl. 14:30"},
		{"swedish", "Upplåst 12 mars, 2020 @ 14:30"},
		{"norwegian", "Låst opp 12. mars 2020 kl. 14:30"},
		{"finnish", "Avattu 12. maaliskuuta 2020 klo 14:30"},
		{"polish", "Odblokowano: 12 marca 2020 o 14:30"},
		{"czech", "Odemčeno 12. března 2020 v 14:30"},
		{"hungarian", "Feloldva: 2020. március 12. 14:30"},
		{"romanian", "Deblocat la 12 martie 2020, ora 14:30"},
		{"russian", "Получено 12 марта 2020 в 14:30"},
		{"ukrainian", "Здобуто 12 березня 2020 о 14:30"},
		{"bulgarian", "Отключено на 12 март 2020 в 14:30"},
		{"greek", "Ξεκλειδώθηκε 12 Μαρτίου 2020 στις 14:30"},
		{"turkish", "Açılma: 12 Mart 2020 @ 14:30"},
		{"thai", "ปลดล็อค 12 มีนาคม 2020 เวลา 14:30"},
		{"indonesian", "Terbuka 12 Maret 2020 @ 14:30"},
		{"vietnamese", "Mở khóa 12 Thg 3, 2020 @ 14:30"},
		{"schinese", "解锁于 2020年3月12日 下午 2:30"},
		{"japanese", "2020年3月12日 14:30 に解除"},
		{"koreana", "2020년 3월 12일 오후 2:30 해제"},
	}

	for _, tc := range cases {
		t.Run(tc.language, func(t *testing.T) {
			got, ok := Parse(tc.text, tc.language, refNow)
			require.True(t, ok, "failed to parse %q", tc.text)
			require.Equal(t, want, got, "wrong instant for %q", tc.text)
		})
	}
}

func TestParseMeridiem(t *testing.T) {
	cases := []struct {
		text string
		hour int
	}{
		{"Unlocked 12 Mar, 2020 @ 2:30pm", 14},
		{"Unlocked 12 Mar, 2020 @ 2:30am", 2},
		{"Unlocked 12 Mar, 2020 @ 12:30am", 0},
		{"Unlocked 12 Mar, 2020 @ 12:30pm", 12},
		{"Unlocked 12 Mar, 2020 @ 14:30", 14},
	}
	for _, tc := range cases {
		got, ok := Parse(tc.text, "english", refNow)
		require.True(t, ok, tc.text)
		want := time.Date(2020, time.March, 12, tc.hour, 30, 0, 0, Pacific).UTC()
		require.Equal(t, want, got, tc.text)
	}
}

func TestYearInference(t *testing.T) {
	nowPacific := refNow.In(Pacific)

	// Three days ahead of now: assumed to be last year's date.
	ahead := nowPacific.AddDate(0, 0, 3)
	text := "Unlocked " + ahead.Format("2 Jan") + " @ 2:30pm"
	got, ok := Parse(text, "english", refNow)
	require.True(t, ok)
	require.Equal(t, nowPacific.Year()-1, got.In(Pacific).Year())

	// One day ahead stays within the tolerance window: current year.
	near := nowPacific.AddDate(0, 0, 1)
	text = "Unlocked " + near.Format("2 Jan") + " @ 2:30pm"
	got, ok = Parse(text, "english", refNow)
	require.True(t, ok)
	require.Equal(t, nowPacific.Year(), got.In(Pacific).Year())
}

func TestParseNumericFallback(t *testing.T) {
	// Day-first for non-English locales, month-first for English.
	got, ok := Parse("12.03.2020 14:30", "german", refNow)
	require.True(t, ok)
	require.Equal(t, time.Date(2020, time.March, 12, 14, 30, 0, 0, Pacific).UTC(), got)

	got, ok = Parse("03/12/2020 2:30pm", "english", refNow)
	require.True(t, ok)
	require.Equal(t, time.Date(2020, time.March, 12, 14, 30, 0, 0, Pacific).UTC(), got)
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, text := range []string{
		"",
		"no numbers here",
		"hidden achievement",
		"99:99",
		"Unlocked @ 14:30", // no date at all
	} {
		_, ok := Parse(text, "english", refNow)
		require.False(t, ok, "expected failure for %q", text)
	}
}

func TestDiacriticFoldedRetry(t *testing.T) {
	// A feed that lost its diacritics must still resolve the month.
	got, ok := Parse("12. Marz 2020 um 14:30", "german", refNow)
	require.True(t, ok)
	require.Equal(t, time.Date(2020, time.March, 12, 14, 30, 0, 0, Pacific).UTC(), got)
}

func TestSupportedLanguagesCoverAliases(t *testing.T) {
	langs := SupportedLanguages()
	require.Contains(t, langs, "english")
	require.Contains(t, langs, "brazilian")
	require.Contains(t, langs, "latam")
	require.Contains(t, langs, "schinese")
	require.True(t, sort.StringsAreSorted(langs), "language list is presented alphabetically")
}
