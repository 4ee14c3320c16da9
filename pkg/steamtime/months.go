package steamtime

import (
	"sort"
	"time"
)

// monthForms lists, per Steam UI language, the month names a stats page can
// render: full nominative forms, genitive/partitive forms where the language
// inflects dates, and the abbreviations Steam actually uses. Keys are the
// Steam API language codes, not BCP 47 tags.
var monthForms = map[string][12][]string{
	"english": {
		{"january", "jan"},
		{"february", "feb"},
		{"march", "mar"},
		{"april", "apr"},
		{"may"},
		{"june", "jun"},
		{"july", "jul"},
		{"august", "aug"},
		{"september", "sep", "sept"},
		{"october", "oct"},
		{"november", "nov"},
		{"december", "dec"},
	},
	"german": {
		{"januar", "jan", "jän", "jänner"},
		{"februar", "feb"},
		{"märz", "mär", "mrz"},
		{"april", "apr"},
		{"mai"},
		{"juni", "jun"},
		{"juli", "jul"},
		{"august", "aug"},
		{"september", "sep", "sept"},
		{"oktober", "okt"},
		{"november", "nov"},
		{"dezember", "dez"},
	},
	"french": {
		{"janvier", "janv"},
		{"février", "févr", "fév"},
		{"mars"},
		{"avril", "avr"},
		{"mai"},
		{"juin"},
		{"juillet", "juil"},
		{"août", "aout"},
		{"septembre", "sept"},
		{"octobre", "oct"},
		{"novembre", "nov"},
		{"décembre", "déc"},
	},
	"italian": {
		{"gennaio", "gen"},
		{"febbraio", "feb"},
		{"marzo", "mar"},
		{"aprile", "apr"},
		{"maggio", "mag"},
		{"giugno", "giu"},
		{"luglio", "lug"},
		{"agosto", "ago"},
		{"settembre", "set"},
		{"ottobre", "ott"},
		{"novembre", "nov"},
		{"dicembre", "dic"},
	},
	"spanish": {
		{"enero", "ene"},
		{"febrero", "feb"},
		{"marzo", "mar"},
		{"abril", "abr"},
		{"mayo", "may"},
		{"junio", "jun"},
		{"julio", "jul"},
		{"agosto", "ago"},
		{"septiembre", "sep", "sept"},
		{"octubre", "oct"},
		{"noviembre", "nov"},
		{"diciembre", "dic"},
	},
	"portuguese": {
		{"janeiro", "jan"},
		{"fevereiro", "fev"},
		{"março", "mar"},
		{"abril", "abr"},
		{"maio", "mai"},
		{"junho", "jun"},
		{"julho", "jul"},
		{"agosto", "ago"},
		{"setembro", "set"},
		{"outubro", "out"},
		{"novembro", "nov"},
		{"dezembro", "dez"},
	},
	"dutch": {
		{"januari", "jan"},
		{"februari", "feb"},
		{"maart", "mrt"},
		{"april", "apr"},
		{"mei"},
		{"juni", "jun"},
		{"juli", "jul"},
		{"augustus", "aug"},
		{"september", "sep"},
		{"oktober", "okt"},
		{"november", "nov"},
		{"december", "dec"},
	},
	"danish": {
		{"januar", "jan"},
		{"februar", "feb"},
		{"marts", "mar"},
		{"april", "apr"},
		{"maj"},
		{"juni", "jun"},
		{"juli", "jul"},
		{"august", "aug"},
		{"september", "sep"},
		{"oktober", "okt"},
		{"november", "nov"},
		{"december", "dec"},
	},
	"swedish": {
		{"januari", "jan"},
		{"februari", "feb"},
		{"mars", "mar"},
		{"april", "apr"},
		{"maj"},
		{"juni", "jun"},
		{"juli", "jul"},
		{"augusti", "aug"},
		{"september", "sep"},
		{"oktober", "okt"},
		{"november", "nov"},
		{"december", "dec"},
	},
	"norwegian": {
		{"januar", "jan"},
		{"februar", "feb"},
		{"mars", "mar"},
		{"april", "apr"},
		{"mai"},
		{"juni", "jun"},
		{"juli", "jul"},
		{"august", "aug"},
		{"september", "sep"},
		{"oktober", "okt"},
		{"november", "nov"},
		{"desember", "des"},
	},
	"finnish": {
		{"tammikuu", "tammikuuta", "tammi"},
		{"helmikuu", "helmikuuta", "helmi"},
		{"maaliskuu", "maaliskuuta", "maalis"},
		{"huhtikuu", "huhtikuuta", "huhti"},
		{"toukokuu", "toukokuuta", "touko"},
		{"kesäkuu", "kesäkuuta", "kesä"},
		{"heinäkuu", "heinäkuuta", "heinä"},
		{"elokuu", "elokuuta", "elo"},
		{"syyskuu", "syyskuuta", "syys"},
		{"lokakuu", "lokakuuta", "loka"},
		{"marraskuu", "marraskuuta", "marras"},
		{"joulukuu", "joulukuuta", "joulu"},
	},
	"polish": {
		{"styczeń", "stycznia", "sty"},
		{"luty", "lutego", "lut"},
		{"marzec", "marca", "mar"},
		{"kwiecień", "kwietnia", "kwi"},
		{"maj", "maja"},
		{"czerwiec", "czerwca", "cze"},
		{"lipiec", "lipca", "lip"},
		{"sierpień", "sierpnia", "sie"},
		{"wrzesień", "września", "wrz"},
		{"październik", "października", "paź"},
		{"listopad", "listopada", "lis"},
		{"grudzień", "grudnia", "gru"},
	},
	"czech": {
		{"leden", "ledna", "led"},
		{"únor", "února", "úno"},
		{"březen", "března", "bře"},
		{"duben", "dubna", "dub"},
		{"květen", "května", "kvě"},
		{"červen", "června", "čvn"},
		{"červenec", "července", "čvc"},
		{"srpen", "srpna", "srp"},
		{"září"},
		{"říjen", "října", "říj"},
		{"listopad", "listopadu", "lis"},
		{"prosinec", "prosince", "pro"},
	},
	"hungarian": {
		{"január", "jan"},
		{"február", "febr", "feb"},
		{"március", "márc"},
		{"április", "ápr"},
		{"május", "máj"},
		{"június", "jún"},
		{"július", "júl"},
		{"augusztus", "aug"},
		{"szeptember", "szept"},
		{"október", "okt"},
		{"november", "nov"},
		{"december", "dec"},
	},
	"romanian": {
		{"ianuarie", "ian"},
		{"februarie", "feb"},
		{"martie", "mar"},
		{"aprilie", "apr"},
		{"mai"},
		{"iunie", "iun"},
		{"iulie", "iul"},
		{"august", "aug"},
		{"septembrie", "sep", "sept"},
		{"octombrie", "oct"},
		{"noiembrie", "noi", "nov"},
		{"decembrie", "dec"},
	},
	"russian": {
		{"январь", "января", "янв"},
		{"февраль", "февраля", "фев"},
		{"март", "марта", "мар"},
		{"апрель", "апреля", "апр"},
		{"май", "мая"},
		{"июнь", "июня", "июн"},
		{"июль", "июля", "июл"},
		{"август", "августа", "авг"},
		{"сентябрь", "сентября", "сен", "сент"},
		{"октябрь", "октября", "окт"},
		{"ноябрь", "ноября", "ноя"},
		{"декабрь", "декабря", "дек"},
	},
	"ukrainian": {
		{"січень", "січня", "січ"},
		{"лютий", "лютого", "лют"},
		{"березень", "березня", "бер"},
		{"квітень", "квітня", "кві"},
		{"травень", "травня", "тра"},
		{"червень", "червня", "чер"},
		{"липень", "липня", "лип"},
		{"серпень", "серпня", "сер"},
		{"вересень", "вересня", "вер"},
		{"жовтень", "жовтня", "жов"},
		{"листопад", "листопада", "лис"},
		{"грудень", "грудня", "гру"},
	},
	"bulgarian": {
		{"януари", "яну"},
		{"февруари", "фев"},
		{"март", "мар"},
		{"април", "апр"},
		{"май"},
		{"юни"},
		{"юли"},
		{"август", "авг"},
		{"септември", "сеп"},
		{"октомври", "окт"},
		{"ноември", "ное"},
		{"декември", "дек"},
	},
	"greek": {
		{"ιανουάριος", "ιανουαρίου", "ιαν"},
		{"φεβρουάριος", "φεβρουαρίου", "φεβ"},
		{"μάρτιος", "μαρτίου", "μαρ"},
		{"απρίλιος", "απριλίου", "απρ"},
		{"μάιος", "μαΐου", "μαϊ"},
		{"ιούνιος", "ιουνίου", "ιουν"},
		{"ιούλιος", "ιουλίου", "ιουλ"},
		{"αύγουστος", "αυγούστου", "αυγ"},
		{"σεπτέμβριος", "σεπτεμβρίου", "σεπ"},
		{"οκτώβριος", "οκτωβρίου", "οκτ"},
		{"νοέμβριος", "νοεμβρίου", "νοε"},
		{"δεκέμβριος", "δεκεμβρίου", "δεκ"},
	},
	"turkish": {
		{"ocak", "oca"},
		{"şubat", "şub"},
		{"mart", "mar"},
		{"nisan", "nis"},
		{"mayıs", "may"},
		{"haziran", "haz"},
		{"temmuz", "tem"},
		{"ağustos", "ağu"},
		{"eylül", "eyl"},
		{"ekim", "eki"},
		{"kasım", "kas"},
		{"aralık", "ara"},
	},
	"thai": {
		{"มกราคม", "ม.ค."},
		{"กุมภาพันธ์", "ก.พ."},
		{"มีนาคม", "มี.ค."},
		{"เมษายน", "เม.ย."},
		{"พฤษภาคม", "พ.ค."},
		{"มิถุนายน", "มิ.ย."},
		{"กรกฎาคม", "ก.ค."},
		{"สิงหาคม", "ส.ค."},
		{"กันยายน", "ก.ย."},
		{"ตุลาคม", "ต.ค."},
		{"พฤศจิกายน", "พ.ย."},
		{"ธันวาคม", "ธ.ค."},
	},
	"indonesian": {
		{"januari", "jan"},
		{"februari", "feb"},
		{"maret", "mar"},
		{"april", "apr"},
		{"mei"},
		{"juni", "jun"},
		{"juli", "jul"},
		{"agustus", "agt", "agu"},
		{"september", "sep"},
		{"oktober", "okt"},
		{"november", "nov"},
		{"desember", "des"},
	},
}

// languageAliases maps the Steam language codes that share month tables with
// another entry. CJK and Vietnamese dates never reach the month-name lookup:
// the former are handled by the numeral date pre-pass, the latter by the
// "tháng N" month marker.
var languageAliases = map[string]string{
	"latam":      "spanish",
	"brazilian":  "portuguese",
	"koreana":    "english",
	"japanese":   "english",
	"schinese":   "english",
	"tchinese":   "english",
	"vietnamese": "english",
}

// SupportedLanguages returns every Steam language code Parse knows about,
// alphabetically.
func SupportedLanguages() []string {
	out := make([]string, 0, len(monthForms)+len(languageAliases))
	for lang := range monthForms {
		out = append(out, lang)
	}
	for lang := range languageAliases {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// monthTable is the cross-locale lookup built once at startup: lowercased,
// trailing-dot-stripped month form -> month number. Diacritic-folded
// variants are inserted alongside so a folded retry can reuse the same map.
var monthTable = buildMonthTable()

func buildMonthTable() map[string]time.Month {
	t := make(map[string]time.Month, 1024)
	for _, forms := range monthForms {
		for m := 0; m < 12; m++ {
			for _, form := range forms[m] {
				insertMonthForm(t, form, time.Month(m+1))
			}
		}
	}
	return t
}

func insertMonthForm(t map[string]time.Month, form string, m time.Month) {
	for _, variant := range []string{form, foldDiacritics(form)} {
		if variant == "" {
			continue
		}
		if _, clash := t[variant]; !clash {
			t[variant] = m
		}
	}
}

func lookupMonth(token string) (time.Month, bool) {
	if m, ok := monthTable[token]; ok {
		return m, true
	}
	if m, ok := monthTable[foldDiacritics(token)]; ok {
		return m, true
	}
	return 0, false
}
