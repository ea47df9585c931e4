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

package epoch

import (
	"testing"
	"time"
)

func TestTimestampRoundTrip(t *testing.T) {
	times := []time.Time{
		Origin,
		time.Date(2024, 3, 15, 9, 30, 1, 123456789, time.UTC),
		time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC), // pre-epoch: negative count
	}
	for _, want := range times {
		if got := FromTimestamp(ToTimestamp(want)); !got.Equal(want) {
			t.Errorf("timestamp round trip: got %v, want %v", got, want)
		}
	}
}

func TestDateRoundTrip(t *testing.T) {
	d := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if got := FromDate(ToDate(d)); !got.Equal(d) {
		t.Errorf("got %v, want %v", got, d)
	}
	if ToDate(Origin) != 0 {
		t.Errorf("origin must be day 0, got %d", ToDate(Origin))
	}
	// time-of-day truncates
	if ToDate(time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC)) != ToDate(d) {
		t.Error("date conversion must truncate time of day")
	}
}

func TestMonthRoundTrip(t *testing.T) {
	m := time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC)
	if got := FromMonth(ToMonth(m)); !got.Equal(m) {
		t.Errorf("got %v, want %v", got, m)
	}
	if ToMonth(Origin) != 0 {
		t.Errorf("origin must be month 0")
	}
}

func TestMidnightUnits(t *testing.T) {
	at := time.Date(2024, 3, 15, 9, 30, 45, 500e6, time.UTC)
	if got := ToMinute(at); got != 9*60+30 {
		t.Errorf("minute = %d", got)
	}
	if got := ToSecond(at); got != (9*60+30)*60+45 {
		t.Errorf("second = %d", got)
	}
	if got := ToTime(at); got != ((9*60+30)*60+45)*1000+500 {
		t.Errorf("time = %d", got)
	}
}

func TestTimespan(t *testing.T) {
	d := 36*time.Hour + 12*time.Minute + time.Nanosecond
	if FromTimespan(ToTimespan(d)) != d {
		t.Error("timespan round trip")
	}
}
