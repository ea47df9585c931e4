// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package epoch centralizes the date origin shared by every temporal
// conversion in the wire codec and the query compiler, so that all
// timestamp/date/month/minute/second/time arithmetic is performed
// relative to a single constant.
package epoch

import "time"

// Origin is the calendar day that all temporal wire types are counted
// relative to.
var Origin = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// ToTimestamp converts t to nanoseconds since Origin.
func ToTimestamp(t time.Time) int64 {
	return t.UTC().Sub(Origin).Nanoseconds()
}

// FromTimestamp converts nanoseconds since Origin back to a time.Time.
func FromTimestamp(ns int64) time.Time {
	return Origin.Add(time.Duration(ns))
}

// ToDate converts t to whole days since Origin, truncating the
// time-of-day component.
func ToDate(t time.Time) int32 {
	t = t.UTC()
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int32(d.Sub(Origin).Hours() / 24)
}

// FromDate converts whole days since Origin back to a time.Time at
// midnight UTC.
func FromDate(days int32) time.Time {
	return Origin.AddDate(0, 0, int(days))
}

// ToMonth converts t to whole months since Origin.
func ToMonth(t time.Time) int32 {
	t = t.UTC()
	years := t.Year() - Origin.Year()
	months := int(t.Month()) - int(Origin.Month())
	return int32(years*12 + months)
}

// FromMonth converts whole months since Origin back to the first day
// of that month.
func FromMonth(months int32) time.Time {
	return Origin.AddDate(0, int(months), 0)
}

// ToDatetime converts t to fractional days since Origin (the legacy
// "datetime" representation).
func ToDatetime(t time.Time) float64 {
	return t.UTC().Sub(Origin).Hours() / 24
}

// FromDatetime converts fractional days since Origin back to a time.Time.
func FromDatetime(days float64) time.Time {
	return Origin.Add(time.Duration(days * 24 * float64(time.Hour)))
}

// sinceMidnight returns the duration since the most recent UTC midnight.
func sinceMidnight(t time.Time) time.Duration {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return t.Sub(midnight)
}

// ToMinute converts t to minutes since midnight.
func ToMinute(t time.Time) int32 {
	return int32(sinceMidnight(t) / time.Minute)
}

// ToSecond converts t to seconds since midnight.
func ToSecond(t time.Time) int32 {
	return int32(sinceMidnight(t) / time.Second)
}

// ToTime converts t to milliseconds since midnight (the legacy "time"
// representation).
func ToTime(t time.Time) int32 {
	return int32(sinceMidnight(t) / time.Millisecond)
}

// ToTimespan converts d to nanoseconds, the wire representation of a
// duration value.
func ToTimespan(d time.Duration) int64 {
	return int64(d)
}

// FromTimespan converts nanoseconds back to a time.Duration.
func FromTimespan(ns int64) time.Duration {
	return time.Duration(ns)
}
