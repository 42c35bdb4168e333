package notes

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/vicentefritzen/petsys-migracao/pkg/logging"
)

// TimestampLayout is the only accepted header timestamp format.
const TimestampLayout = "02/01/2006 15:04:05"

// headerPattern accepts loosely shaped dates so that a header with an
// impossible or malformed date still ends the previous entry's body.
var headerPattern = regexp.MustCompile(`\[(\d{1,4}/\d{1,2}/\d{1,4})\s+(\d{1,2}:\d{1,2}:\d{1,2})\s*-\s*([^\]]+)\]:`)

type tokenizeOptions struct {
	logger    logging.Logger
	location  *time.Location
	onDiscard func(header string, err error)
}

// TokenizeOption configures Tokenize.
type TokenizeOption func(*tokenizeOptions)

// WithLogger sets the logger that receives warnings about discarded headers.
func WithLogger(l logging.Logger) TokenizeOption {
	return func(o *tokenizeOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLocation sets the time zone header timestamps are interpreted in.
// The default is UTC.
func WithLocation(loc *time.Location) TokenizeOption {
	return func(o *tokenizeOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// OnDiscard registers fn to be called for every header dropped because its
// timestamp does not parse.
func OnDiscard(fn func(header string, err error)) TokenizeOption {
	return func(o *tokenizeOptions) {
		o.onDiscard = fn
	}
}

// Tokenize splits blob into entries sorted by timestamp. Entries with equal
// timestamps keep their order of appearance. Headers whose timestamp does not
// parse are dropped together with their body, as are entries with an empty
// body. The result is never nil.
func Tokenize(blob string, opts ...TokenizeOption) []Entry {
	o := tokenizeOptions{
		logger:   logging.NewNopLogger(),
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(&o)
	}

	entries := []Entry{}
	if strings.TrimSpace(blob) == "" {
		return entries
	}

	matches := headerPattern.FindAllStringSubmatchIndex(blob, -1)
	for i, m := range matches {
		bodyEnd := len(blob)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}

		date, clock := blob[m[2]:m[3]], blob[m[4]:m[5]]
		author := strings.TrimSpace(blob[m[6]:m[7]])
		body := strings.TrimSpace(blob[m[1]:bodyEnd])

		ts, err := time.ParseInLocation(TimestampLayout, date+" "+clock, o.location)
		if err != nil {
			o.logger.Warn("Discarding entry with invalid header date",
				logging.F("header", blob[m[0]:m[1]]),
				logging.Err(err))
			if o.onDiscard != nil {
				o.onDiscard(blob[m[0]:m[1]], err)
			}
			continue
		}
		if body == "" {
			continue
		}

		entries = append(entries, Entry{
			Timestamp: ts,
			Author:    author,
			Body:      body,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries
}
