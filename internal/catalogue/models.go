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
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Day is the weekday of a repeating period
type Day string

const (
	Monday    Day = "MO"
	Tuesday   Day = "TU"
	Wednesday Day = "WE"
	Thursday  Day = "TH"
	Friday    Day = "FR"
	Saturday  Day = "SA"
	Sunday    Day = "SU"
)

// Days lists every Day in week order
var Days = []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Valid reports whether d is one of the seven day codes
func (d Day) Valid() bool {
	for _, v := range Days {
		if d == v {
			return true
		}
	}
	return false
}

// School model
type School struct {
	ID                       uint   `gorm:"primarykey" json:"-"`
	Key                      string `gorm:"size:50;uniqueIndex;not null" json:"key"`
	Name                     string `gorm:"size:100;not null" json:"name"`
	DisplaysDepartmentPrefix bool   `gorm:"not null;default:false" json:"displays_department_prefix"`

	Terms        []Term        `json:"terms,omitempty"`
	Departments  []Department  `json:"departments,omitempty"`
	SectionTypes []SectionType `json:"section_types,omitempty"`
}

// Term model. A term may be split into subterms.
type Term struct {
	ID           uint    `gorm:"primarykey" json:"-"`
	SchoolID     uint    `gorm:"not null;uniqueIndex:idx_term_code_school" json:"-"`
	Code         string  `gorm:"size:20;not null;uniqueIndex:idx_term_code_school" json:"code"`
	ParentTermID *uint   `json:"-"`
	ShortName    *string `gorm:"size:50" json:"short_name,omitempty"`
	LongName     *string `gorm:"size:100" json:"long_name,omitempty"`

	Subterms  []Term         `gorm:"foreignKey:ParentTermID" json:"subterms,omitempty"`
	Instances []TermInstance `json:"instances,omitempty"`
}

// TermInstance is one year's occurrence of a term
type TermInstance struct {
	ID        uint           `gorm:"primarykey" json:"-"`
	Year      int            `gorm:"not null;uniqueIndex:idx_instance_year_term" json:"year"`
	TermID    uint           `gorm:"not null;uniqueIndex:idx_instance_year_term" json:"-"`
	StartDate datatypes.Date `gorm:"not null" json:"start_date"`
	EndDate   datatypes.Date `gorm:"not null" json:"end_date"`

	TimeTables []TimeTable `json:"timetables,omitempty"`
}

// TimeTable groups the courses offered in one term instance
type TimeTable struct {
	ID             uint      `gorm:"primarykey" json:"-"`
	LastUpdate     time.Time `gorm:"type:timestamptz;not null;default:now()" json:"last_update"`
	TermInstanceID uint      `gorm:"not null" json:"-"`

	Departments []Department `gorm:"many2many:timetable_departments" json:"departments,omitempty"`
	Courses     []Course     `json:"courses,omitempty"`
}

// Department model
type Department struct {
	ID       uint   `gorm:"primarykey" json:"-"`
	SchoolID uint   `gorm:"not null;uniqueIndex:idx_department_school_name_code" json:"-"`
	Name     string `gorm:"size:100;not null;uniqueIndex:idx_department_school_name_code" json:"name"`
	Code     string `gorm:"size:20;not null;uniqueIndex:idx_department_school_name_code" json:"code"`
}

// Course model
type Course struct {
	ID           uint    `gorm:"primarykey" json:"-"`
	Name         string  `gorm:"size:100;not null" json:"name"`
	Code         string  `gorm:"size:20;not null" json:"code"`
	DepartmentID uint    `gorm:"not null" json:"-"`
	TimeTableID  uint    `gorm:"not null" json:"-"`
	TermID       uint    `gorm:"not null" json:"-"`
	Credits      float64 `gorm:"not null" json:"credits"`
	Description  string  `gorm:"type:text" json:"description"`

	PreRequisites  []*Course `gorm:"many2many:course_pre_requisites" json:"pre_requisites,omitempty"`
	AntiRequisites []*Course `gorm:"many2many:course_anti_requisites" json:"anti_requisites,omitempty"`
	CoRequisites   []*Course `gorm:"many2many:course_co_requisites" json:"co_requisites,omitempty"`
	CrossListings  []*Course `gorm:"many2many:course_cross_listings" json:"cross_listings,omitempty"`

	Notes    []CourseNote `json:"notes,omitempty"`
	Sections []Section    `json:"sections,omitempty"`
}

// CourseNote model
type CourseNote struct {
	ID       uint   `gorm:"primarykey" json:"-"`
	CourseID uint   `gorm:"not null" json:"-"`
	Text     string `gorm:"size:1000;not null" json:"text"`
}

// SectionType model, e.g. lecture or tutorial
type SectionType struct {
	ID       uint   `gorm:"primarykey" json:"-"`
	SchoolID uint   `gorm:"not null" json:"-"`
	Name     string `gorm:"size:100;not null" json:"name"`
	Code     string `gorm:"size:20;not null" json:"code"`
}

// Section model
type Section struct {
	ID            uint   `gorm:"primarykey" json:"-"`
	CourseID      uint   `gorm:"not null" json:"-"`
	SectionTypeID uint   `gorm:"not null" json:"-"`
	Serial        string `gorm:"size:20;not null" json:"serial"`
	Online        bool   `gorm:"not null;default:false" json:"online"`
	MaxEnrolled   *int   `json:"max_enrolled,omitempty"`
	NumEnrolled   *int   `json:"num_enrolled,omitempty"`
	MaxWaiting    *int   `json:"max_waiting,omitempty"`
	NumWaiting    *int   `json:"num_waiting,omitempty"`
	Alternating   bool   `gorm:"not null;default:false" json:"alternating"`
	Cancelled     bool   `gorm:"not null;default:false" json:"cancelled"`

	Notes []SectionNote `json:"notes,omitempty"`
}

// SectionNote model
type SectionNote struct {
	ID        uint   `gorm:"primarykey" json:"-"`
	SectionID uint   `gorm:"not null" json:"-"`
	Text      string `gorm:"size:1000;not null" json:"text"`
}

// Period is either repeating (Day set, no dates) or one-time (dates set,
// no Day)
type Period struct {
	ID        uint           `gorm:"primarykey" json:"-"`
	Campus    string         `gorm:"size:20" json:"campus"`
	Room      string         `gorm:"size:20" json:"room"`
	Online    bool           `gorm:"not null;default:false" json:"online"`
	TermID    uint           `gorm:"not null" json:"-"`
	StartTime datatypes.Time `gorm:"not null" json:"start_time"`
	EndTime   datatypes.Time `gorm:"not null" json:"end_time"`

	// Repeating periods only
	Day *Day `gorm:"size:2" json:"day,omitempty"`

	// One-time periods only
	StartDate *datatypes.Date `json:"start_date,omitempty"`
	EndDate   *datatypes.Date `json:"end_date,omitempty"`

	Notes       []PeriodNote `json:"notes,omitempty"`
	Supervisors []Supervisor `json:"supervisors,omitempty"`
}

// PeriodNote model
type PeriodNote struct {
	ID       uint   `gorm:"primarykey" json:"-"`
	PeriodID uint   `gorm:"not null" json:"-"`
	Text     string `gorm:"size:1000;not null" json:"text"`
}

// Supervisor model
type Supervisor struct {
	ID        uint   `gorm:"primarykey" json:"-"`
	PeriodID  uint   `gorm:"not null" json:"-"`
	FirstName string `gorm:"size:50;not null" json:"first_name"`
	LastName  string `gorm:"size:50;not null" json:"last_name"`
	Text      string `gorm:"size:1000" json:"text,omitempty"`
}

// IsRepeating reports whether p recurs weekly
func (p *Period) IsRepeating() bool {
	return p.Day != nil
}

// Validate checks the repeating/one-time shape and the time range
func (p *Period) Validate() error {
	if p.StartTime >= p.EndTime {
		return fmt.Errorf("period start time %s must be before end time %s", p.StartTime, p.EndTime)
	}

	if p.Day != nil {
		if !p.Day.Valid() {
			return fmt.Errorf("invalid period day: %q", *p.Day)
		}
		if p.StartDate != nil || p.EndDate != nil {
			return fmt.Errorf("repeating period cannot have start or end dates")
		}
		return nil
	}

	if p.StartDate == nil || p.EndDate == nil {
		return fmt.Errorf("one-time period requires both start and end dates")
	}
	if time.Time(*p.EndDate).Before(time.Time(*p.StartDate)) {
		return fmt.Errorf("period end date is before start date")
	}
	return nil
}

// BeforeSave rejects malformed periods
func (p *Period) BeforeSave(tx *gorm.DB) error {
	return p.Validate()
}

// Validate checks the date range
func (ti *TermInstance) Validate() error {
	if time.Time(ti.EndDate).Before(time.Time(ti.StartDate)) {
		return fmt.Errorf("term instance end date is before start date")
	}
	return nil
}

// BeforeSave rejects inverted term instances
func (ti *TermInstance) BeforeSave(tx *gorm.DB) error {
	return ti.Validate()
}
