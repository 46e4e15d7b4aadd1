package dispatch

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RuleClassifier recognizes intents with keywords and regular expressions.
// It needs no network access and is deterministic for a given clock.
type RuleClassifier struct{}

var opRules = []struct {
	op Operation
	re *regexp.Regexp
}{
	{OpRescheduleBooking, regexp.MustCompile(`\b(reschedule|move|push back|postpone)\b`)},
	{OpCancelBooking, regexp.MustCompile(`\b(cancel|delete|remove)\b.*(\bbooking|\bmeeting|\bappointment|\bcall|#\d|\b\d{2,})`)},
	{OpCreateEventType, regexp.MustCompile(`\b(create|add|new|make|set up)\b.*\bevent[- ]?types?\b|\bnew event[- ]?type\b`)},
	{OpListBookings, regexp.MustCompile(`\b(bookings|appointments|meetings)\b|\b(my|upcoming|scheduled)\s+(booking|meeting|appointment)s?\b`)},
	{OpCheckAvailability, regexp.MustCompile(`\b(available|availability|free|open slots?|slots?|when can)\b`)},
	{OpCreateBooking, regexp.MustCompile(`\b(book|schedule)\b.*\bevent[- ]?type\s*#?\d`)},
	{OpListEventTypes, regexp.MustCompile(`\bevent[- ]?types?\b`)},
	{OpCreateBooking, regexp.MustCompile(`\b(book|schedule|set up|arrange)\b`)},
}

// switchRules decide whether a reply to a clarification question starts a
// different operation. Only explicit requests count; incidental words like
// "free" or "meeting" are details for the current draft.
var switchRules = map[Operation]*regexp.Regexp{
	OpRescheduleBooking: regexp.MustCompile(`\b(reschedule|postpone)\b|\bmove\b.*(\bbooking\b|#\d)`),
	OpCancelBooking:     regexp.MustCompile(`\b(cancel|delete|remove)\b.*(\bbooking|\bmeeting|\bappointment|#\d|\b\d{2,})`),
	OpCreateEventType:   regexp.MustCompile(`\b(create|add|make|set up)\b.*\bevent[- ]?types?\b`),
	OpListBookings:      regexp.MustCompile(`\b(list|show|see|what are)\b.*\b(bookings|appointments|meetings)\b`),
	OpCheckAvailability: regexp.MustCompile(`\b(check|show|list|find|see)\b.*\b(availability|slots?)\b`),
	OpListEventTypes:    regexp.MustCompile(`\b(list|show|see|what are|which)\b.*\bevent[- ]?types\b`),
	OpCreateBooking:     regexp.MustCompile(`\b(book|schedule)\b`),
}

var (
	reEmail        = regexp.MustCompile(`[^\s,;<>()"']+@[^\s,;<>()"']+`)
	reWithName     = regexp.MustCompile(`\bwith\s+([A-Z][\p{L}'\-]*(?:\s+[A-Z][\p{L}'\-]*)?)`)
	reMyName       = regexp.MustCompile(`(?i)\b(?:my name is|name is|name's|attendee is)\s+([\p{L}'\-]+(?:\s+[\p{L}'\-]+)?)`)
	reBareName     = regexp.MustCompile(`^[A-Z][\p{L}'\-]+(?:\s+[A-Z][\p{L}'\-]+)?$`)
	reMinutes      = regexp.MustCompile(`(?i)\b(\d{1,3})\s*-?\s*(?:minutes?|mins?|m)\b`)
	reHours        = regexp.MustCompile(`(?i)\b(\d{1,2}(?:\.5)?)\s*-?\s*(?:hours?|hrs?|h)\b`)
	reHalfHour     = regexp.MustCompile(`(?i)\bhalf[- ]an?[- ]hour\b|\bhalf[- ]hour\b`)
	reAnHour       = regexp.MustCompile(`(?i)\ban hour\b|\bone hour\b`)
	reEventTypeID  = regexp.MustCompile(`(?i)\bevent[- ]?type\s*(?:#|id\s*)?(\d+)\b`)
	reBookingID    = regexp.MustCompile(`(?i)(?:#|\bbooking\s*(?:#|id\s*)?|\bid\s*)(\d+)\b`)
	reBareNumber   = regexp.MustCompile(`\b(\d{1,9})\b`)
	reQuoted       = regexp.MustCompile(`["“]([^"”]+)["”]`)
	reCalled       = regexp.MustCompile(`(?i)\b(?:called|named|titled)\s+([^,.;!?]+)`)
	reReason       = regexp.MustCompile(`(?i)\b(?:because(?: of)?|reason:?|due to)\s+(.+)$`)
	reISODate      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	reMonthDay     = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	reWeekday      = regexp.MustCompile(`(?i)\b(?:(next|this)\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	reAMPM         = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am\b|pm\b|a\.m\.|p\.m\.)`)
	re24h          = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	reAtHour       = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})\b`)
	reNoon         = regexp.MustCompile(`(?i)\bnoon\b`)
	reDurationWord = regexp.MustCompile(`(?i)\b(\d{1,3})\s*-?\s*(?:minutes?|mins?|hours?|hrs?)\b`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "sept": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// Classify implements Classifier.
func (RuleClassifier) Classify(_ context.Context, req Request) (Intent, error) {
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)

	text := strings.TrimSpace(req.Utterance)
	lower := strings.ToLower(text)

	op := OpNone
	for _, r := range opRules {
		if r.re.MatchString(lower) {
			op = r.op
			break
		}
	}
	if req.Draft != "" && op != OpNone && op != req.Draft && !switchRules[op].MatchString(lower) {
		op = OpNone
	}

	// rest drops the parts of the text already consumed so later patterns,
	// such as bare numbers, don't pick them up again.
	rest := text
	consume := func(re *regexp.Regexp) [][]string {
		m := re.FindAllStringSubmatch(rest, -1)
		if m != nil {
			rest = re.ReplaceAllString(rest, " ")
		}
		return m
	}

	var p Params
	if m := consume(reEmail); m != nil {
		p.AttendeeEmail = strings.TrimRight(m[0][0], ".!?")
	}
	if m := reReason.FindStringSubmatch(rest); m != nil {
		p.Reason = strings.TrimSpace(strings.TrimRight(m[1], ".!?"))
		rest = reReason.ReplaceAllString(rest, " ")
	}

	switch m := reMyName.FindStringSubmatch(rest); {
	case m != nil:
		p.AttendeeName = cleanName(m[1])
	default:
		if m := reWithName.FindStringSubmatch(rest); m != nil {
			p.AttendeeName = cleanName(m[1])
		}
	}

	title := ""
	if m := consume(reQuoted); m != nil {
		title = strings.TrimSpace(m[0][1])
	} else if m := reCalled.FindStringSubmatch(rest); m != nil {
		title = cutAt(m[1], phraseStops)
		rest = reCalled.ReplaceAllString(rest, " ")
	}

	if m := consume(reEventTypeID); m != nil {
		p.EventTypeID, _ = strconv.Atoi(m[0][1])
	}
	p.Duration = parseDuration(rest)

	p.Day, p.From, p.To = parseDate(&rest, lower, now, loc)
	p.Clock = parseClock(&rest)

	if m := consume(reBookingID); m != nil {
		p.BookingID, _ = strconv.Atoi(m[0][1])
	}

	target := op
	if target == OpNone {
		target = req.Draft
	}

	switch target {
	case OpCreateEventType:
		p.Title = title
		if n, err := strconv.Atoi(text); err == nil && op == OpNone {
			p.Duration = n
		} else if p.Title == "" && op == OpNone {
			// A bare reply to "what title?" is the title itself.
			if t := strings.Trim(reDurationWord.ReplaceAllString(text, ""), " ,.!?"); t != "" && len(t) <= 60 && !isAbandon(t) {
				p.Title = t
			}
		}
	case OpCreateBooking, OpCheckAvailability:
		if title != "" {
			p.EventTypeHint = title
		}
		if p.AttendeeName == "" && op == OpNone && reBareName.MatchString(text) {
			p.AttendeeName = text
		}
	case OpCancelBooking, OpRescheduleBooking:
		if p.BookingID == 0 {
			cleaned := reDurationWord.ReplaceAllString(rest, " ")
			if m := reBareNumber.FindStringSubmatch(cleaned); m != nil {
				p.BookingID, _ = strconv.Atoi(m[1])
			}
		}
	}

	if op == OpListBookings || op == OpCheckAvailability || target == OpListBookings || target == OpCheckAvailability {
		// A single day means the whole day for range queries.
		if !p.Day.IsZero() && p.From.IsZero() {
			p.From, p.To = p.Day, p.Day.AddDate(0, 0, 1)
		}
	}
	if op == OpNone && req.Draft == "" {
		return Intent{Operation: OpNone}, nil
	}
	return Intent{Operation: op, Params: p}, nil
}

var phraseStops = []string{" with ", " at ", " on ", " for ", " tomorrow", " today", " next "}

func cleanName(s string) string {
	return cutAt(s, phraseStops)
}

// cutAt truncates s at the first stop phrase.
func cutAt(s string, stops []string) string {
	s = strings.TrimSpace(s)
	for _, stop := range stops {
		if i := strings.Index(strings.ToLower(s), stop); i > 0 {
			s = s[:i]
		}
	}
	return strings.Trim(s, " ,.")
}

func parseDuration(s string) int {
	if m := reMinutes.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := reHours.FindStringSubmatch(s); m != nil {
		f, _ := strconv.ParseFloat(m[1], 64)
		return int(f * 60)
	}
	if reHalfHour.MatchString(s) {
		return 30
	}
	if reAnHour.MatchString(s) {
		return 60
	}
	return 0
}

// parseDate returns a single day, or a [from, to) range for week phrases.
func parseDate(rest *string, lower string, now time.Time, loc *time.Location) (day, from, to time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch {
	case strings.Contains(lower, "day after tomorrow"):
		day = today.AddDate(0, 0, 2)
	case strings.Contains(lower, "tomorrow"):
		day = today.AddDate(0, 0, 1)
	case strings.Contains(lower, "today") || strings.Contains(lower, "tonight"):
		day = today
	case strings.Contains(lower, "next week"):
		monday := today.AddDate(0, 0, (8-int(today.Weekday()))%7)
		if monday.Equal(today) {
			monday = today.AddDate(0, 0, 7)
		}
		return time.Time{}, monday, monday.AddDate(0, 0, 7)
	case strings.Contains(lower, "this week"):
		end := today.AddDate(0, 0, (7-int(today.Weekday()))%7+1)
		return time.Time{}, today, end
	}
	if !day.IsZero() {
		return day, time.Time{}, time.Time{}
	}

	if m := reISODate.FindStringSubmatch(*rest); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		*rest = reISODate.ReplaceAllString(*rest, " ")
		return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc), time.Time{}, time.Time{}
	}
	if m := reMonthDay.FindStringSubmatch(*rest); m != nil {
		mo := months[strings.ToLower(m[1])]
		d, _ := strconv.Atoi(m[2])
		*rest = reMonthDay.ReplaceAllString(*rest, " ")
		day = time.Date(today.Year(), mo, d, 0, 0, 0, 0, loc)
		if day.Before(today) {
			day = day.AddDate(1, 0, 0)
		}
		return day, time.Time{}, time.Time{}
	}
	if m := reWeekday.FindStringSubmatch(lower); m != nil {
		wd := weekdays[m[2]]
		ahead := (int(wd) - int(today.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead), time.Time{}, time.Time{}
	}
	return time.Time{}, time.Time{}, time.Time{}
}

func parseClock(rest *string) *TimeOfDay {
	s := *rest
	if m := reAMPM.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if h < 1 || h > 12 || minute > 59 {
			return nil
		}
		pm := strings.HasPrefix(strings.ToLower(m[3]), "p")
		switch {
		case pm && h != 12:
			h += 12
		case !pm && h == 12:
			h = 0
		}
		*rest = reAMPM.ReplaceAllString(s, " ")
		return &TimeOfDay{Hour: h, Minute: minute}
	}
	if m := re24h.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		*rest = re24h.ReplaceAllString(s, " ")
		return &TimeOfDay{Hour: h, Minute: minute}
	}
	if reNoon.MatchString(s) {
		*rest = reNoon.ReplaceAllString(s, " ")
		return &TimeOfDay{Hour: 12}
	}
	if m := reAtHour.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h < 1 || h > 12 {
			return nil
		}
		// Bare hours are read as business hours.
		if h < 8 {
			h += 12
		}
		*rest = reAtHour.ReplaceAllString(s, " ")
		return &TimeOfDay{Hour: h}
	}
	return nil
}
