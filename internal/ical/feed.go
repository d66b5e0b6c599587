package ical

import (
	"context"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"venuebook/internal/model"
	"venuebook/internal/repo"
)

const calendarName = "Student Engagement - Approved Events"

// Feed renders approved events as an ICS calendar. Derivable without
// authentication: only public, approved events appear here.
type Feed struct {
	repo repo.Repository
}

func NewFeed(r repo.Repository) *Feed {
	return &Feed{repo: r}
}

func (f *Feed) Render(ctx context.Context) (string, error) {
	events, err := f.repo.ListEventsByStatus(ctx, model.StatusApproved)
	if err != nil {
		return "", err
	}

	groups, err := f.repo.ListGroups(ctx)
	if err != nil {
		return "", err
	}
	venues, err := f.repo.ListVenues(ctx)
	if err != nil {
		return "", err
	}
	groupNames := make(map[string]string, len(groups))
	for _, g := range groups {
		groupNames[g.ID] = g.Name
	}
	venueNames := make(map[string]string, len(venues))
	for _, v := range venues {
		venueNames[v.ID] = v.Name
	}

	return Render(events, groupNames, venueNames), nil
}

// Render builds the calendar from already-loaded rows; split out so tests
// can exercise it without a store.
func Render(events []model.Event, groupNames, venueNames map[string]string) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetXWRCalName(calendarName)

	now := time.Now()
	for _, e := range events {
		ev := cal.AddEvent(e.ID)
		ev.SetDtStampTime(now)
		ev.SetStartAt(e.StartsAt)
		ev.SetEndAt(e.EndsAt)
		ev.SetSummary(e.Title)
		if name := venueNames[e.VenueID]; name != "" {
			ev.SetLocation(name)
		}
		desc := describe(groupNames[e.GroupID], e.Description)
		if desc != "" {
			ev.SetDescription(desc)
		}
	}

	return cal.Serialize()
}

func describe(groupName, description string) string {
	parts := make([]string, 0, 2)
	if groupName != "" {
		parts = append(parts, groupName)
	}
	if description != "" {
		parts = append(parts, description)
	}
	return strings.Join(parts, "\n\n")
}
