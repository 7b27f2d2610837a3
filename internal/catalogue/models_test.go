/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package catalogue

import (
	"testing"
	"time"

	"gorm.io/datatypes"
)

func date(y int, m time.Month, d int) *datatypes.Date {
	v := datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	return &v
}

func day(d Day) *Day { return &d }

func TestDayValid(t *testing.T) {
	for _, d := range Days {
		if !d.Valid() {
			t.Errorf("expected %q to be valid", d)
		}
	}
	if Day("XX").Valid() || Day("mo").Valid() {
		t.Error("expected unknown day codes to be invalid")
	}
}

func TestPeriodValidate(t *testing.T) {
	nine := datatypes.NewTime(9, 0, 0, 0)
	ten := datatypes.NewTime(10, 0, 0, 0)

	tests := []struct {
		name    string
		period  Period
		wantErr bool
	}{
		{
			name:   "repeating",
			period: Period{StartTime: nine, EndTime: ten, Day: day(Monday)},
		},
		{
			name:   "one-time",
			period: Period{StartTime: nine, EndTime: ten, StartDate: date(2025, 12, 10), EndDate: date(2025, 12, 10)},
		},
		{
			name:    "end before start",
			period:  Period{StartTime: ten, EndTime: nine, Day: day(Friday)},
			wantErr: true,
		},
		{
			name:    "zero length",
			period:  Period{StartTime: nine, EndTime: nine, Day: day(Friday)},
			wantErr: true,
		},
		{
			name:    "repeating with dates",
			period:  Period{StartTime: nine, EndTime: ten, Day: day(Tuesday), StartDate: date(2025, 1, 1)},
			wantErr: true,
		},
		{
			name:    "one-time missing end date",
			period:  Period{StartTime: nine, EndTime: ten, StartDate: date(2025, 1, 1)},
			wantErr: true,
		},
		{
			name:    "one-time inverted dates",
			period:  Period{StartTime: nine, EndTime: ten, StartDate: date(2025, 2, 1), EndDate: date(2025, 1, 1)},
			wantErr: true,
		},
		{
			name:    "invalid day",
			period:  Period{StartTime: nine, EndTime: ten, Day: day("XX")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.period.BeforeSave(nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("BeforeSave() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPeriodIsRepeating(t *testing.T) {
	if !(&Period{Day: day(Sunday)}).IsRepeating() {
		t.Error("expected period with a day to repeat")
	}
	if (&Period{}).IsRepeating() {
		t.Error("expected period without a day to be one-time")
	}
}

func TestTermInstanceValidate(t *testing.T) {
	ok := TermInstance{Year: 2025, StartDate: *date(2025, 9, 1), EndDate: *date(2025, 12, 20)}
	if err := ok.BeforeSave(nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := TermInstance{Year: 2025, StartDate: *date(2025, 12, 20), EndDate: *date(2025, 9, 1)}
	if err := bad.BeforeSave(nil); err == nil {
		t.Error("expected inverted term instance to be rejected")
	}
}
