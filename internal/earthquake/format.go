package earthquake

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// NearTheLabel is the secondary location shown when a place has no
// "<offset> of" prefix.
const NearTheLabel = "Near the"

// Bucket is the display severity class of a magnitude.
type Bucket string

// Buckets, one per integer magnitude from 1 to 9. Magnitudes below 2 share
// Bucket1; negative magnitudes fall through to Bucket10Plus.
const (
	Bucket1      Bucket = "1"
	Bucket2      Bucket = "2"
	Bucket3      Bucket = "3"
	Bucket4      Bucket = "4"
	Bucket5      Bucket = "5"
	Bucket6      Bucket = "6"
	Bucket7      Bucket = "7"
	Bucket8      Bucket = "8"
	Bucket9      Bucket = "9"
	Bucket10Plus Bucket = "10plus"
)

// Display holds the presentation fields derived from one Earthquake.
type Display struct {
	Magnitude         float64 `json:"magnitude"`
	MagnitudeText     string  `json:"magnitudeText"`
	Bucket            Bucket  `json:"bucket"`
	Place             string  `json:"place"`
	PrimaryLocation   string  `json:"primaryLocation"`
	SecondaryLocation string  `json:"secondaryLocation"`
	TimeMillis        int64   `json:"time"`
	DateText          string  `json:"dateText"`
	TimeText          string  `json:"timeText"`
	DetailURL         string  `json:"url"`
}

// Formatter derives display fields. Dates are rendered in US English in
// Location, which defaults to UTC.
type Formatter struct {
	Location  *time.Location
	NearLabel string
}

// DefaultFormatter formats in UTC with NearTheLabel.
var DefaultFormatter = Formatter{Location: time.UTC, NearLabel: NearTheLabel}

// Format derives every display field of eq.
func (f Formatter) Format(eq Earthquake) Display {
	primary, secondary := f.SplitLocation(eq.Place())
	return Display{
		Magnitude:         eq.Magnitude(),
		MagnitudeText:     FormatMagnitude(eq.Magnitude()),
		Bucket:            MagnitudeBucket(eq.Magnitude()),
		Place:             eq.Place(),
		PrimaryLocation:   primary,
		SecondaryLocation: secondary,
		TimeMillis:        eq.TimeMillis(),
		DateText:          f.FormatDate(eq.TimeMillis()),
		TimeText:          f.FormatTime(eq.TimeMillis()),
		DetailURL:         eq.DetailURL(),
	}
}

// FormatAll formats a list of records, preserving order.
func (f Formatter) FormatAll(quakes []Earthquake) []Display {
	out := make([]Display, 0, len(quakes))
	for _, eq := range quakes {
		out = append(out, f.Format(eq))
	}
	return out
}

// SplitLocation splits place into a primary and a secondary location.
//
// When place contains "of" it is cut after the first 'f' anywhere in the
// string, which is not necessarily the 'f' of "of". Otherwise the whole place
// is primary and the secondary location is the near label.
func (f Formatter) SplitLocation(place string) (primary, secondary string) {
	if !strings.Contains(place, "of") {
		return place, f.nearLabel()
	}
	split := strings.IndexByte(place, 'f') + 1
	return strings.TrimSpace(place[split:]), strings.TrimSpace(place[:split])
}

// FormatDate renders ms as "MMM DD, yyyy" where DD is the day of the year,
// e.g. "Feb 32, 2024" for February 1st.
func (f Formatter) FormatDate(ms int64) string {
	t := f.localTime(ms)
	return fmt.Sprintf("%s %02d, %04d", t.Format("Jan"), t.YearDay(), t.Year())
}

// FormatTime renders ms as a 12-hour clock time, e.g. "3:04 PM".
func (f Formatter) FormatTime(ms int64) string {
	return f.localTime(ms).Format("3:04 PM")
}

func (f Formatter) localTime(ms int64) time.Time {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(ms).In(loc)
}

func (f Formatter) nearLabel() string {
	if f.NearLabel == "" {
		return NearTheLabel
	}
	return f.NearLabel
}

// FormatMagnitude renders m with exactly one fractional digit. Ties on the
// exact binary value round to even.
func FormatMagnitude(m float64) string {
	return strconv.FormatFloat(m, 'f', 1, 64)
}

// MagnitudeBucket classifies m by its floor.
func MagnitudeBucket(m float64) Bucket {
	b := math.Floor(m)
	switch {
	case b == 0 || b == 1:
		return Bucket1
	case b >= 2 && b <= 9:
		return Bucket(strconv.Itoa(int(b)))
	default:
		return Bucket10Plus
	}
}

// SplitLocation splits place using DefaultFormatter.
func SplitLocation(place string) (primary, secondary string) {
	return DefaultFormatter.SplitLocation(place)
}

// FormatDate formats ms using DefaultFormatter.
func FormatDate(ms int64) string {
	return DefaultFormatter.FormatDate(ms)
}

// FormatTime formats ms using DefaultFormatter.
func FormatTime(ms int64) string {
	return DefaultFormatter.FormatTime(ms)
}

// Format derives display fields using DefaultFormatter.
func Format(eq Earthquake) Display {
	return DefaultFormatter.Format(eq)
}
