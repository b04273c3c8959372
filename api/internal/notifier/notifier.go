// Package notifier periodically scans open tasks and delivers deadline
// reminders according to each assignee's notification preference.
package notifier

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/qx/taskmate_robot/api/internal/model"
	"github.com/qx/taskmate_robot/api/internal/svc"
)

const (
	dayThreshold  = 24 * time.Hour
	weekThreshold = 7 * 24 * time.Hour
)

type Notifier struct {
	svcCtx   *svc.ServiceContext
	interval time.Duration
}

func New(svcCtx *svc.ServiceContext) *Notifier {
	return &Notifier{
		svcCtx:   svcCtx,
		interval: time.Duration(svcCtx.Config.Notifier.IntervalMinutes) * time.Minute,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.sweep(ctx, time.Now())
		}
	}
}

// sweep walks every open task once. Each reminder threshold fires at most
// one time per task: the sent flags are persisted before the next sweep
// can see the task again.
func (n *Notifier) sweep(ctx context.Context, now time.Time) {
	tasks, err := n.svcCtx.API.ListActiveTasks(ctx)
	if err != nil {
		logx.Errorf("notifier: list active tasks: %v", err)
		return
	}
	for i := range tasks {
		n.process(ctx, &tasks[i], now)
	}
}

// process fires the most urgent pending threshold for the task. An
// overdue open task still falls inside the one-day window, so it gets the
// day reminder once. Crossing into the one-day window marks the week flag
// too, so a task created inside the week window never gets a late week
// reminder after the day one.
func (n *Notifier) process(ctx context.Context, task *model.Task, now time.Time) {
	until := task.Deadline.Sub(now)
	switch {
	case until <= dayThreshold && !task.Notified.DayBefore:
		n.remind(ctx, task, model.NotifyDayBefore)
		task.Notified.DayBefore = true
		task.Notified.WeekBefore = true
	case until <= weekThreshold && !task.Notified.WeekBefore:
		n.remind(ctx, task, model.NotifyWeekBefore)
		task.Notified.WeekBefore = true
	default:
		return
	}
	if err := n.svcCtx.API.UpdateTask(ctx, task); err != nil {
		logx.Errorf("notifier: persist flags for task %s: %v", task.TaskOid, err)
	}
}

func (n *Notifier) remind(ctx context.Context, task *model.Task, threshold string) {
	horizon := "in a week"
	if threshold == model.NotifyDayBefore {
		horizon = "tomorrow"
	}
	text := "Reminder: '" + task.Title + "' is due " + horizon +
		", on " + task.Deadline.Format("02.01 15:04") + "."

	for _, oid := range task.AssignedTo {
		user, err := n.svcCtx.API.GetUserByOid(ctx, oid)
		if err != nil {
			logx.Errorf("notifier: resolve assignee %s of task %s: %v", oid, task.TaskOid, err)
			continue
		}
		if !user.WantsNotification(threshold) {
			continue
		}
		if _, err := n.svcCtx.Bot.Send(tgbotapi.NewMessage(user.UserTid, text)); err != nil {
			logx.Errorf("notifier: send to user %d: %v", user.UserTid, err)
		}
	}
}
