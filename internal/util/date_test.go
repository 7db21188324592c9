package util

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in     string
		want   time.Time
		wantOK bool
	}{
		{"2026-01-17", day(2026, 1, 17), true},
		{"2026/01/17", day(2026, 1, 17), true},
		{"01/17/2026", day(2026, 1, 17), true},
		{"1/7/2026", day(2026, 1, 7), true},
		{"2/17/26", day(2026, 2, 17), true},
		{"17 JAN 2026", day(2026, 1, 17), true},
		{"17 Jan 26", day(2026, 1, 17), true},
		{"Jan 17, 2026", day(2026, 1, 17), true},
		{"02/09/2026 as of 02/06/2026", day(2026, 2, 6), true},
		{"", time.Time{}, false},
		{"13/45/2026", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFindDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"Positions for CUSTACCS as of 01:18 AM ET, 02/10/2026", day(2026, 2, 10)},
		{"Positions for account Individual ...013 as of 02:18 AM ET, 2026/02/18", day(2026, 2, 18)},
		{"Balances for All-Accounts as of 02/17/2026 10:00 AM", day(2026, 2, 17)},
	}
	for _, tt := range tests {
		got, ok := FindDate(tt.in)
		if !ok || !got.Equal(tt.want) {
			t.Errorf("FindDate(%q) = %v, %v; want %v", tt.in, got, ok, tt.want)
		}
	}

	if _, ok := FindDate("no date here"); ok {
		t.Error("FindDate matched text without a date")
	}
}

func TestFindLastDate(t *testing.T) {
	got, ok := FindLastDate("Account Statement for 123 since 1/1/26 through 2/17/26")
	if !ok || !got.Equal(day(2026, 2, 17)) {
		t.Errorf("FindLastDate() = %v, %v", got, ok)
	}
}
