// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scheduler

import (
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"every minute", "* * * * *", false},
		{"daily backup", "0 3 * * *", false},
		{"weekly backup", "0 3 * * 0", false},
		{"monthly backup", "0 3 1 * *", false},
		{"weekdays by name", "0 9 * * mon-fri", false},
		{"month names", "0 0 1 jan,jul *", false},
		{"sunday as 7", "0 0 * * 7", false},
		{"stepped start", "5/20 * * * *", false},
		{"extra whitespace", "  0   4 * * *  ", false},
		{"@daily", "@daily", false},
		{"invalid - too few fields", "* * *", true},
		{"invalid - too many fields", "* * * * * *", true},
		{"invalid - bad minute", "60 * * * *", true},
		{"invalid - bad hour", "0 25 * * *", true},
		{"invalid - zero day", "0 0 0 * *", true},
		{"invalid - reversed range", "0 0 * * 5-1", true},
		{"invalid - zero step", "*/0 * * * *", true},
		{"invalid - garbage", "every day", true},
		{"invalid - empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCron(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestCronExpr_Next(t *testing.T) {
	// Fixed reference time: 2025-01-15 10:30:00 UTC (Wednesday)
	ref := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		expr     string
		from     time.Time
		expected time.Time
	}{
		{"every minute", "* * * * *", ref, time.Date(2025, 1, 15, 10, 31, 0, 0, time.UTC)},
		{"mid-minute start", "* * * * *", ref.Add(45 * time.Second), time.Date(2025, 1, 15, 10, 31, 0, 0, time.UTC)},
		{"every 15 minutes", "*/15 * * * *", ref, time.Date(2025, 1, 15, 10, 45, 0, 0, time.UTC)},
		{"stepped start", "5/20 * * * *", ref, time.Date(2025, 1, 15, 10, 45, 0, 0, time.UTC)},
		{"daily at 03:00", "0 3 * * *", ref, time.Date(2025, 1, 16, 3, 0, 0, 0, time.UTC)},
		{"weekly sunday 03:00", "0 3 * * 0", ref, time.Date(2025, 1, 19, 3, 0, 0, 0, time.UTC)},
		{"sunday as 7", "0 0 * * 7", ref, time.Date(2025, 1, 19, 0, 0, 0, 0, time.UTC)},
		{"monthly first 03:00", "0 3 1 * *", ref, time.Date(2025, 2, 1, 3, 0, 0, 0, time.UTC)},
		{
			"weekdays skip weekend",
			"0 9 * * mon-fri",
			time.Date(2025, 1, 17, 10, 0, 0, 0, time.UTC),
			time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC),
		},
		{"day-of-month or day-of-week", "0 0 13 * fri", ref, time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)},
		{"year rollover", "0 0 1 1 *", ref, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"never matches", "0 0 31 2 *", ref, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := ParseCron(tt.expr)
			if err != nil {
				t.Fatalf("ParseCron(%q) error = %v", tt.expr, err)
			}
			got := expr.Next(tt.from)
			if !got.Equal(tt.expected) {
				t.Errorf("Next(%v) = %v, want %v", tt.from, got, tt.expected)
			}
		})
	}
}

func TestCronExpr_NextKeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	expr, err := ParseCron("0 3 * * *")
	if err != nil {
		t.Fatal(err)
	}
	got := expr.Next(time.Date(2025, 1, 15, 2, 59, 0, 0, loc))
	want := time.Date(2025, 1, 15, 3, 0, 0, 0, loc)
	if !got.Equal(want) || got.Location() != loc {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestCronExpr_Matches(t *testing.T) {
	expr, err := ParseCron("30 10 * * wed")
	if err != nil {
		t.Fatal(err)
	}
	if !expr.Matches(time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)) {
		t.Error("expected Wednesday 10:30 to match")
	}
	if expr.Matches(time.Date(2025, 1, 16, 10, 30, 0, 0, time.UTC)) {
		t.Error("expected Thursday 10:30 not to match")
	}
}
