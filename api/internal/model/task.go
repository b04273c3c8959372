package model

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Task status values.
const (
	TaskOpen      = "open"
	TaskCompleted = "completed"
	TaskArchived  = "archive"
)

// RecurringNone is the stored sentinel for a one-off task. Kept as the
// literal "False" for compatibility with the backing store's documents.
const RecurringNone = "False"

var ErrBadRecurrence = errors.New("unrecognized recurrence")

// Notified tracks which deadline reminders have already been sent.
type Notified struct {
	DayBefore  bool `json:"day_before"`
	WeekBefore bool `json:"week_before"`
}

type Task struct {
	TaskOid        string    `json:"task_oid"`
	GroupOid       string    `json:"group_oid"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Status         string    `json:"status"`
	CreatorOid     string    `json:"creator_oid"`
	AssignedTo     []string  `json:"assigned_to"`
	Deadline       time.Time `json:"deadline"`
	LastUpdated    string    `json:"last_updated"`
	Recurring      string    `json:"recurring"`
	CompletionDate string    `json:"completion_date"`
	Notified       Notified  `json:"notified"`
}

func (t *Task) IsGroupTask() bool {
	return t.GroupOid != ""
}

func (t *Task) IsRecurring() bool {
	return t.Recurring != "" && t.Recurring != RecurringNone
}

// Complete applies the completion transition. A recurring task stays open:
// its deadline advances by one recurrence interval and the reminder flags
// reset. A one-off task terminates into completed with a stamped time.
func (t *Task) Complete(now time.Time) error {
	if t.IsRecurring() {
		next, err := NextOccurrence(t.Deadline, t.Recurring)
		if err != nil {
			return err
		}
		t.Deadline = next
		t.Notified = Notified{}
	} else {
		t.Status = TaskCompleted
		t.CompletionDate = now.UTC().Format(time.RFC3339)
	}
	t.LastUpdated = now.UTC().Format(time.RFC3339)
	return nil
}

var customRecurrence = regexp.MustCompile(`^d(\d+)$`)

// NextOccurrence computes the deadline following d under the given
// recurrence rule: daily +1 day, weekly +7 days, monthly +1 calendar month
// (day-of-month preserved, clamped to the target month's length), d<N>
// +N days.
func NextOccurrence(d time.Time, recurring string) (time.Time, error) {
	switch recurring {
	case "daily":
		return d.AddDate(0, 0, 1), nil
	case "weekly":
		return d.AddDate(0, 0, 7), nil
	case "monthly":
		return addMonthClamped(d), nil
	}
	if m := customRecurrence.FindStringSubmatch(recurring); m != nil {
		days, err := strconv.Atoi(m[1])
		if err != nil || days <= 0 {
			return time.Time{}, fmt.Errorf("%w: %q", ErrBadRecurrence, recurring)
		}
		return d.AddDate(0, 0, days), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadRecurrence, recurring)
}

// addMonthClamped adds one calendar month without Go's AddDate overflow
// normalization: Jan 31 advances to Feb 28/29, not Mar 2.
func addMonthClamped(d time.Time) time.Time {
	year, month := d.Year(), d.Month()+1
	if month > time.December {
		month = time.January
		year++
	}
	day := d.Day()
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, d.Hour(), d.Minute(), d.Second(), d.Nanosecond(), d.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

var daysInput = regexp.MustCompile(`^(\d+)\s*(?:days?|дней|дня|день)?$`)

// ParseRecurrence maps free-form user input onto the canonical recurrence
// values: one of the named intervals, a bare "d<N>", or "<N> days".
func ParseRecurrence(input string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "one-time", "once", "разовая":
		return RecurringNone, nil
	case "daily", "ежедневно":
		return "daily", nil
	case "weekly", "еженедельно":
		return "weekly", nil
	case "monthly", "ежемесячно":
		return "monthly", nil
	}
	text := strings.ToLower(strings.TrimSpace(input))
	if m := customRecurrence.FindStringSubmatch(text); m != nil {
		return dayRule(m[1], input)
	}
	if m := daysInput.FindStringSubmatch(text); m != nil {
		return dayRule(m[1], input)
	}
	return "", fmt.Errorf("%w: %q", ErrBadRecurrence, input)
}

// dayRule canonicalizes a day-count rule. A zero-day interval could never
// advance a deadline, so it is rejected at input time rather than on the
// first completion.
func dayRule(digits, input string) (string, error) {
	days, err := strconv.Atoi(digits)
	if err != nil || days <= 0 {
		return "", fmt.Errorf("%w: %q", ErrBadRecurrence, input)
	}
	return "d" + strconv.Itoa(days), nil
}

// RecurrenceLabel renders a stored recurrence value for display.
func RecurrenceLabel(recurring string) string {
	switch recurring {
	case "daily":
		return "Daily"
	case "weekly":
		return "Weekly"
	case "monthly":
		return "Monthly"
	case RecurringNone, "":
		return "One-time"
	}
	if m := customRecurrence.FindStringSubmatch(recurring); m != nil {
		return fmt.Sprintf("Every %s days", m[1])
	}
	return recurring
}

// ParseDeadline parses "dd.mm.yyyy hh:mm" or "dd.mm hh:mm" input. When the
// year is omitted the current year is substituted. The result carries the
// location of the triggering message.
func ParseDeadline(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if len(strings.Fields(input)) != 2 {
		return time.Time{}, fmt.Errorf("deadline must be date and time: %q", input)
	}
	loc := now.Location()
	if d, err := time.ParseInLocation("02.01.2006 15:04", input, loc); err == nil {
		return d, nil
	}
	d, err := time.ParseInLocation("02.01 15:04", input, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad deadline %q: %w", input, err)
	}
	return d.AddDate(now.Year(), 0, 0), nil
}

// TaskStatistics is the header summary shown on the /task menu.
type TaskStatistics struct {
	Total           int
	Active          int
	GroupTasks      int
	Overdue         int
	NearestDeadline string
}

// Statistics summarizes a user's tasks. Active means status open; overdue
// and nearest-deadline are computed over active tasks only.
func Statistics(tasks []Task, now time.Time) TaskStatistics {
	stats := TaskStatistics{Total: len(tasks), NearestDeadline: "no active tasks"}
	var nearest time.Time
	for _, t := range tasks {
		if t.Status != TaskOpen {
			continue
		}
		stats.Active++
		if t.IsGroupTask() {
			stats.GroupTasks++
		}
		if t.Deadline.Before(now) {
			stats.Overdue++
		}
		if nearest.IsZero() || t.Deadline.Before(nearest) {
			nearest = t.Deadline
		}
	}
	if !nearest.IsZero() {
		stats.NearestDeadline = nearest.Format("02.01 15:04")
	}
	return stats
}

// SortByDeadline returns a copy ordered by ascending deadline, the order
// every task list is rendered in.
func SortByDeadline(tasks []Task) []Task {
	sorted := make([]Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Deadline.Before(sorted[j].Deadline)
	})
	return sorted
}
