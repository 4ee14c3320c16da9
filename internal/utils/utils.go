package utils

import (
	"strings"

	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
)

var Log = logrus.New()

func SetLogLevel(level string) {
	// We are not using logrus' trace and panic levels
	switch strings.ToLower(level) {
	case "debug":
		Log.SetLevel(log.DebugLevel)
	case "info":
		Log.SetLevel(log.InfoLevel)
	case "warning", "warn":
		Log.SetLevel(log.WarnLevel)
	case "error":
		Log.SetLevel(log.ErrorLevel)
	case "fatal":
		Log.SetLevel(log.FatalLevel)
	default:
		log.Fatal("Bad error level string")
	}
}

// FirstNumbers returns the first n decimal-digit runs found in s, in order.
// Steam renders the "X of Y achievements" header in the viewer's language,
// so word positions cannot be trusted; digit runs can.
func FirstNumbers(s string, n int) []int {
	out := make([]int, 0, n)
	cur := 0
	inRun := false
	for _, r := range s {
		if r >= '0' && r <= '9' {
			cur = cur*10 + int(r-'0')
			inRun = true
			continue
		}
		if inRun {
			out = append(out, cur)
			cur = 0
			inRun = false
			if len(out) == n {
				return out
			}
		}
	}
	if inRun && len(out) < n {
		out = append(out, cur)
	}
	return out
}

// LastPathSegment strips the query string and returns everything after the
// final slash. Achievement icon filenames are the reconciliation identity,
// so this must be stable across CDN hosts and cache-buster parameters.
func LastPathSegment(rawURL string) string {
	s := rawURL
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	return s
}
