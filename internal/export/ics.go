// Package export writes a schedule's extracted events to iCalendar and
// Parquet files.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"github.com/lehigh-university-libraries/calsnap/internal/calendar"
	"github.com/lehigh-university-libraries/calsnap/internal/models"
)

const productID = "-//calsnap//EN"

// WriteICS encodes events as a VCALENDAR. Times are resolved in loc and
// written in UTC.
func WriteICS(w io.Writer, events []models.ExtractedEvent, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	stamp := time.Now().UTC()
	for _, e := range events {
		start, end, err := calendar.EventTimes(e.Draft(), loc)
		if err != nil {
			return fmt.Errorf("event %d: %w", e.ID, err)
		}

		ve := ical.NewComponent(ical.CompEvent)
		ve.Props.SetText(ical.PropUID, eventUID(e))
		ve.Props.SetText(ical.PropSummary, e.Title)
		ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
		ve.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())
		if e.Location != nil {
			ve.Props.SetText(ical.PropLocation, *e.Location)
		}
		if e.Description != nil {
			ve.Props.SetText(ical.PropDescription, *e.Description)
		}
		cal.Children = append(cal.Children, ve)
	}

	// a VCALENDAR needs at least one component
	if len(cal.Children) == 0 {
		cal.Children = append(cal.Children, utcTimezone())
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

// utcTimezone describes UTC, the zone every exported time is written in.
func utcTimezone() *ical.Component {
	std := ical.NewComponent(ical.CompTimezoneStandard)
	for name, value := range map[string]string{
		ical.PropDateTimeStart:      "19700101T000000",
		ical.PropTimezoneOffsetFrom: "+0000",
		ical.PropTimezoneOffsetTo:   "+0000",
	} {
		prop := ical.NewProp(name)
		prop.Value = value
		std.Props.Set(prop)
	}

	tz := ical.NewComponent(ical.CompTimezone)
	tz.Props.SetText(ical.PropTimezoneID, "UTC")
	tz.Children = append(tz.Children, std)
	return tz
}

func eventUID(e models.ExtractedEvent) string {
	if e.GoogleEventID != nil {
		return *e.GoogleEventID + "@google.com"
	}
	return fmt.Sprintf("calsnap-%d-%d@calsnap", e.ScheduleImageID, e.ID)
}
