package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qx/taskmate_robot/api/internal/client"
	"github.com/qx/taskmate_robot/api/internal/engine"
	"github.com/qx/taskmate_robot/api/internal/keyboard"
	"github.com/qx/taskmate_robot/api/internal/model"
	"github.com/qx/taskmate_robot/api/internal/perm"
	"github.com/qx/taskmate_robot/api/internal/session"
	"github.com/qx/taskmate_robot/api/internal/svc"
)

// Task conversation states.
const (
	stateTaskSelect        engine.State = "task_select"
	stateTaskName          engine.State = "task_name"
	stateTaskDescription   engine.State = "task_description"
	stateTaskDeadline      engine.State = "task_deadline"
	stateTaskRecurring     engine.State = "task_recurring"
	stateTaskAssignees     engine.State = "task_assignees"
	stateTaskConfirmCreate engine.State = "task_confirm_create"
	stateTaskEditOption    engine.State = "task_edit_option"
	stateTaskAction        engine.State = "task_action"
	stateTaskConfirmEdit   engine.State = "task_confirm_edit"
)

const promptDeadline = "Enter the deadline (dd.mm.yyyy hh:mm).\n" +
	"The year may be omitted; the current year is assumed."

type TaskLogic struct {
	svcCtx *svc.ServiceContext
}

func NewTaskLogic(svcCtx *svc.ServiceContext) *TaskLogic {
	return &TaskLogic{svcCtx: svcCtx}
}

// Conversation defines the task flow state graph. Entry is any press on
// the /task menu; /cancel interrupts from every state.
func (l *TaskLogic) Conversation() *engine.Spec {
	return &engine.Spec{
		Name: "task",
		Entry: []engine.Rule{
			{Match: engine.CallbackPrefix("task_menu_"), Handle: l.MenuSelection},
		},
		States: map[engine.State][]engine.Rule{
			stateTaskSelect:        {{Match: engine.AnyText(), Handle: l.SelectTask}},
			stateTaskName:          {{Match: engine.AnyText(), Handle: l.InputName}},
			stateTaskDescription:   {{Match: engine.AnyText(), Handle: l.InputDescription}},
			stateTaskDeadline:      {{Match: engine.AnyText(), Handle: l.InputDeadline}},
			stateTaskRecurring:     {{Match: engine.AnyText(), Handle: l.InputRecurring}},
			stateTaskAssignees:     {{Match: engine.AnyText(), Handle: l.InputAssignees}},
			stateTaskConfirmCreate: {{Match: engine.CallbackPrefix("task_confirm_"), Handle: l.ConfirmCreation}},
			stateTaskEditOption:    {{Match: engine.CallbackPrefix("task_edit_"), Handle: l.SelectEditOption}},
			stateTaskAction:        {{Match: engine.CallbackPrefix("task_action_"), Handle: l.HandleAction}},
			stateTaskConfirmEdit:   {{Match: engine.CallbackPrefix("task_confirm_"), Handle: l.ConfirmEdit}},
		},
		Cancel: l.cancel,
	}
}

func (l *TaskLogic) cancel(ctx context.Context, ev engine.Event) (engine.State, error) {
	if err := l.svcCtx.Sessions.ResetTask(ev.ChatID); err != nil {
		return engine.End, err
	}
	sendMarkup(l.svcCtx.Bot, ev.ChatID, msgCancelled, keyboard.MainMenu())
	return engine.End, nil
}

// Menu handles /task: a statistics header plus the task menu.
func (l *TaskLogic) Menu(ctx context.Context, ev engine.Event) (engine.State, error) {
	if err := l.svcCtx.Sessions.ResetAll(ev.ChatID); err != nil {
		return engine.End, err
	}
	tasks, err := l.svcCtx.API.ListUserTasks(ctx, ev.UserID)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
		return engine.End, nil
	}
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		s.Task.Tasks = tasks
		stats := model.Statistics(tasks, ev.Time)
		text := fmt.Sprintf(
			"TASKS\n\nTotal: %d\nActive: %d\nGroup tasks: %d\nOverdue: %d\nNearest deadline: %s",
			stats.Total, stats.Active, stats.GroupTasks, stats.Overdue, stats.NearestDeadline)
		sendMarkup(l.svcCtx.Bot, ev.ChatID, text, keyboard.TaskMenu())
		return engine.End, nil
	})
}

// MenuSelection is the conversation entry point: a press on one of the
// /task menu buttons.
func (l *TaskLogic) MenuSelection(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		switch ev.Callback {
		case "task_menu_new":
			s.Task.Draft = &session.TaskDraft{}
			s.Task.EditingTask = false
			removeKeyboard(l.svcCtx.Bot, ev.ChatID, "Enter the new task's title:")
			return stateTaskName, nil
		case "task_menu_active":
			return l.showTaskList(ev, s, func(t model.Task) bool {
				return t.Status != model.TaskCompleted && t.Status != model.TaskArchived
			})
		case "task_menu_personal":
			return l.showTaskList(ev, s, func(t model.Task) bool {
				return !t.IsGroupTask()
			})
		case "task_menu_archive":
			return l.showTaskList(ev, s, func(t model.Task) bool {
				return t.Status != model.TaskOpen
			})
		}
		return engine.End, nil
	})
}

func (l *TaskLogic) showTaskList(ev engine.Event, s *session.Session, keep func(model.Task) bool) (engine.State, error) {
	var filtered []model.Task
	for _, t := range s.Task.Tasks {
		if keep(t) {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		sendMarkup(l.svcCtx.Bot, ev.ChatID, "Nothing in this list.", keyboard.MainMenu())
		return engine.End, nil
	}
	sorted := model.SortByDeadline(filtered)
	s.Task.Selected = sorted
	sendMarkup(l.svcCtx.Bot, ev.ChatID, "Choose a task:",
		keyboard.IndexedList(keyboard.TaskLabels(sorted)))
	return stateTaskSelect, nil
}

// SelectTask resolves an indexed selection. Bad input re-prompts the same
// state without losing the rendered list.
func (l *TaskLogic) SelectTask(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		idx, err := keyboard.ParseIndex(ev.Text, len(s.Task.Selected))
		if err != nil {
			send(l.svcCtx.Bot, ev.ChatID, msgBadInput)
			return stateTaskSelect, nil
		}
		task := s.Task.Selected[idx]
		s.Task.Current = &task

		status := "Open"
		if task.Status != model.TaskOpen {
			status = "Closed"
		}
		details := fmt.Sprintf(
			"Task: %s\nDescription: %s\nStatus: %s\nDeadline: %s\nRecurrence: %s\n",
			task.Title, task.Description, status,
			task.Deadline.Format("02.01.06 15:04"), model.RecurrenceLabel(task.Recurring))
		if task.CompletionDate != "" {
			details += "Completed " + task.CompletionDate
		}

		canManage := perm.CanManageTask(&task, l.memberFor(ctx, s, &task, ev.UserID))
		sendMarkup(l.svcCtx.Bot, ev.ChatID, details, keyboard.TaskActions(canManage))
		return stateTaskAction, nil
	})
}

// memberFor resolves the caller's membership row for a group task, caching
// the fetched group in the session.
func (l *TaskLogic) memberFor(ctx context.Context, s *session.Session, task *model.Task, tid int64) *model.GroupMember {
	if !task.IsGroupTask() {
		return nil
	}
	if s.Group.Current != nil && s.Group.Current.GroupOid == task.GroupOid && s.Group.CallerRow != nil {
		return s.Group.CallerRow
	}
	group, err := l.svcCtx.API.GetGroup(ctx, task.GroupOid)
	if err != nil {
		return nil
	}
	member, ok := group.MemberByTid(tid)
	if !ok {
		return nil
	}
	s.Group.Current = group
	s.Group.CallerRow = member
	return member
}

// HandleAction dispatches the detail-view buttons. Edit and delete are
// re-authorized here even though ineligible roles never get the buttons:
// the chat keyboard is not the authorization boundary.
func (l *TaskLogic) HandleAction(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		task := s.Task.Current
		if task == nil {
			sendMarkup(l.svcCtx.Bot, ev.ChatID, "Task not found.", keyboard.MainMenu())
			return engine.End, nil
		}
		switch ev.Callback {
		case "task_action_complete":
			return l.completeTask(ctx, ev, s, task)
		case "task_action_delete":
			if !perm.CanManageTask(task, l.memberFor(ctx, s, task, ev.UserID)) {
				send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
				return engine.End, nil
			}
			if err := l.svcCtx.API.DeleteTask(ctx, task.TaskOid); err != nil {
				send(l.svcCtx.Bot, ev.ChatID, "Could not delete the task. Please try again.")
				return engine.End, nil
			}
			s.Task = session.TaskScratch{}
			send(l.svcCtx.Bot, ev.ChatID, "Task deleted.")
			return engine.End, nil
		case "task_action_edit":
			if !perm.CanManageTask(task, l.memberFor(ctx, s, task, ev.UserID)) {
				send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
				return engine.End, nil
			}
			s.Task.EditingTask = true
			s.Task.Draft = &session.TaskDraft{}
			sendMarkup(l.svcCtx.Bot, ev.ChatID, "What do you want to change?",
				keyboard.EditTaskOptions(task.IsGroupTask()))
			return stateTaskEditOption, nil
		}
		return engine.End, nil
	})
}

// completeTask applies the completion transition: recurring tasks advance
// their deadline and stay open, one-off tasks terminate into completed.
func (l *TaskLogic) completeTask(ctx context.Context, ev engine.Event, s *session.Session, task *model.Task) (engine.State, error) {
	nextNote := ""
	if task.IsRecurring() {
		nextNote = " Next deadline: "
	}
	if err := task.Complete(ev.Time); err != nil {
		send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
		return engine.End, nil
	}
	if nextNote != "" {
		nextNote += task.Deadline.Format("02.01 15:04")
	}
	if err := l.svcCtx.API.UpdateTask(ctx, task); err != nil {
		send(l.svcCtx.Bot, ev.ChatID, "Could not mark the task as done.")
		return engine.End, nil
	}
	s.Task = session.TaskScratch{}
	send(l.svcCtx.Bot, ev.ChatID, "Task marked as done."+nextNote)
	return engine.End, nil
}

// InputName collects the title. On a targeted revisit control returns
// straight to the confirmation screen instead of advancing linearly.
func (l *TaskLogic) InputName(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		draft := taskDraft(s)
		draft.Title = strings.TrimSpace(ev.Text)
		if s.Task.Entry == session.EntryRevisit {
			s.Task.Entry = ""
			return l.confirm(ctx, ev, s)
		}
		send(l.svcCtx.Bot, ev.ChatID, "Enter the task description:")
		return stateTaskDescription, nil
	})
}

func (l *TaskLogic) InputDescription(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		draft := taskDraft(s)
		draft.Description = strings.TrimSpace(ev.Text)
		if s.Task.Entry == session.EntryRevisit {
			s.Task.Entry = ""
			return l.confirm(ctx, ev, s)
		}
		send(l.svcCtx.Bot, ev.ChatID, promptDeadline)
		return stateTaskDeadline, nil
	})
}

func (l *TaskLogic) InputDeadline(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		deadline, err := model.ParseDeadline(ev.Text, ev.Time)
		if err != nil {
			send(l.svcCtx.Bot, ev.ChatID, "Invalid date format. "+promptDeadline)
			return stateTaskDeadline, nil
		}
		draft := taskDraft(s)
		draft.Deadline = deadline
		if s.Task.Entry == session.EntryRevisit {
			s.Task.Entry = ""
			return l.confirm(ctx, ev, s)
		}
		sendMarkup(l.svcCtx.Bot, ev.ChatID,
			"Choose the recurrence, or type your own \"<number> days\":",
			keyboard.Recurring())
		return stateTaskRecurring, nil
	})
}

func (l *TaskLogic) InputRecurring(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		recurring, err := model.ParseRecurrence(ev.Text)
		if err != nil {
			sendMarkup(l.svcCtx.Bot, ev.ChatID,
				"Invalid choice. Pick one of the options or type \"<number> days\":",
				keyboard.Recurring())
			return stateTaskRecurring, nil
		}
		draft := taskDraft(s)
		draft.Recurring = recurring
		if s.Task.Entry == session.EntryRevisit {
			s.Task.Entry = ""
			return l.confirm(ctx, ev, s)
		}
		if s.Group.Current != nil && !s.Task.EditingTask {
			return l.promptAssignees(ctx, ev, s)
		}
		return l.confirm(ctx, ev, s)
	})
}

func (l *TaskLogic) promptAssignees(ctx context.Context, ev engine.Event, s *session.Session) (engine.State, error) {
	group := s.Group.Current
	names := make(map[string]string, len(group.Members))
	for _, m := range group.Members {
		names[m.MemberOid] = l.displayName(ctx, m)
	}
	sendMarkup(l.svcCtx.Bot, ev.ChatID,
		"Choose assignees (comma-separated numbers):",
		keyboard.IndexedList(keyboard.MemberLabels(group.Members, names)))
	return stateTaskAssignees, nil
}

// InputAssignees parses a comma-separated index list against the cached
// member roster.
func (l *TaskLogic) InputAssignees(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		group := s.Group.Current
		if group == nil {
			send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
			return engine.End, nil
		}
		var picked []model.GroupMember
		var names []string
		for _, part := range strings.Split(ev.Text, ",") {
			idx, err := keyboard.ParseIndex(strings.TrimSpace(part), len(group.Members))
			if err != nil {
				send(l.svcCtx.Bot, ev.ChatID, msgBadInput)
				return stateTaskAssignees, nil
			}
			member := group.Members[idx]
			picked = append(picked, member)
			names = append(names, l.displayName(ctx, member))
		}
		s.Task.Assignees = picked
		s.Task.AssigneeNames = names
		s.Task.Entry = ""
		return l.confirm(ctx, ev, s)
	})
}

func (l *TaskLogic) displayName(ctx context.Context, member model.GroupMember) string {
	user, err := l.svcCtx.API.GetUserByOid(ctx, member.MemberOid)
	if err != nil {
		return fmt.Sprintf("user %d", member.MemberTid)
	}
	return user.Name
}

// confirm renders the confirmation screen: creation values on a first
// pass, merged values when editing an existing task.
func (l *TaskLogic) confirm(ctx context.Context, ev engine.Event, s *session.Session) (engine.State, error) {
	if s.Task.EditingTask {
		merged := mergeTaskDraft(s.Task.Current, s.Task.Draft)
		text := "Confirm the new task values:\n" + taskSummary(&merged, s.Task.AssigneeNames)
		sendMarkup(l.svcCtx.Bot, ev.ChatID, text+"\n\nCancel - /cancel", keyboard.Confirmation("task"))
		return stateTaskConfirmEdit, nil
	}
	draft := taskDraft(s)
	preview := model.Task{
		Title:       draft.Title,
		Description: draft.Description,
		Deadline:    draft.Deadline,
		Recurring:   draft.Recurring,
	}
	text := "Confirm task creation:\n" + taskSummary(&preview, s.Task.AssigneeNames)
	sendMarkup(l.svcCtx.Bot, ev.ChatID, text+"\n\nCancel - /cancel", keyboard.Confirmation("task"))
	return stateTaskConfirmCreate, nil
}

func taskSummary(task *model.Task, assigneeNames []string) string {
	text := fmt.Sprintf("Title: %s\nDescription: %s\nDeadline: %s\nRecurrence: %s",
		task.Title, task.Description,
		task.Deadline.Format("02.01.06 15:04"), model.RecurrenceLabel(task.Recurring))
	if len(assigneeNames) > 0 {
		text += "\nAssigned: " + strings.Join(assigneeNames, ", ")
	}
	return text
}

// ConfirmCreation commits the draft or re-enters the edit menu.
func (l *TaskLogic) ConfirmCreation(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		switch ev.Callback {
		case "task_confirm_yes":
			return l.createTask(ctx, ev, s)
		case "task_confirm_edit":
			groupTask := s.Group.Current != nil || len(s.Task.Assignees) > 0
			sendMarkup(l.svcCtx.Bot, ev.ChatID, "What do you want to change?",
				keyboard.EditTaskOptions(groupTask))
			return stateTaskEditOption, nil
		}
		return engine.End, nil
	})
}

func (l *TaskLogic) createTask(ctx context.Context, ev engine.Event, s *session.Session) (engine.State, error) {
	user, err := l.svcCtx.API.GetUser(ctx, ev.UserID)
	if err != nil {
		send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
		return engine.End, nil
	}
	draft := taskDraft(s)
	assigned := []string{user.UserOid}
	if len(s.Task.Assignees) > 0 {
		assigned = assigned[:0]
		for _, m := range s.Task.Assignees {
			assigned = append(assigned, m.MemberOid)
		}
	}
	groupOid := ""
	if s.Group.Current != nil {
		groupOid = s.Group.Current.GroupOid
	}
	task := &model.Task{
		TaskOid:     model.OidUnassigned,
		GroupOid:    groupOid,
		Title:       draft.Title,
		Description: draft.Description,
		Status:      model.TaskOpen,
		CreatorOid:  user.UserOid,
		AssignedTo:  assigned,
		Deadline:    draft.Deadline,
		LastUpdated: ev.Time.UTC().Format(time.RFC3339),
		Recurring:   draft.Recurring,
	}
	if _, err := l.svcCtx.API.CreateTask(ctx, task); err != nil {
		sendMarkup(l.svcCtx.Bot, ev.ChatID, "Could not create the task. Please try again.", keyboard.MainMenu())
	} else {
		sendMarkup(l.svcCtx.Bot, ev.ChatID, "Task created.", keyboard.MainMenu())
	}
	s.Task = session.TaskScratch{}
	return engine.End, nil
}

// SelectEditOption routes a field choice back into its input state as a
// targeted revisit.
func (l *TaskLogic) SelectEditOption(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		s.Task.Entry = session.EntryRevisit
		switch ev.Callback {
		case "task_edit_title":
			send(l.svcCtx.Bot, ev.ChatID, "Enter the new title:")
			return stateTaskName, nil
		case "task_edit_description":
			send(l.svcCtx.Bot, ev.ChatID, "Enter the new description:")
			return stateTaskDescription, nil
		case "task_edit_deadline":
			send(l.svcCtx.Bot, ev.ChatID, promptDeadline)
			return stateTaskDeadline, nil
		case "task_edit_recurring":
			sendMarkup(l.svcCtx.Bot, ev.ChatID,
				"Choose the new recurrence, or type your own \"<number> days\":",
				keyboard.Recurring())
			return stateTaskRecurring, nil
		case "task_edit_assignees":
			if s.Group.Current == nil {
				send(l.svcCtx.Bot, ev.ChatID, msgBadInput)
				return stateTaskEditOption, nil
			}
			return l.promptAssignees(ctx, ev, s)
		}
		return stateTaskEditOption, nil
	})
}

// ConfirmEdit commits merged values onto the existing task.
func (l *TaskLogic) ConfirmEdit(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		switch ev.Callback {
		case "task_confirm_yes":
			task := s.Task.Current
			if task == nil {
				sendMarkup(l.svcCtx.Bot, ev.ChatID, "Task not found.", keyboard.MainMenu())
				return engine.End, nil
			}
			merged := mergeTaskDraft(task, s.Task.Draft)
			if len(s.Task.Assignees) > 0 {
				assigned := make([]string, 0, len(s.Task.Assignees))
				for _, m := range s.Task.Assignees {
					assigned = append(assigned, m.MemberOid)
				}
				merged.AssignedTo = assigned
			}
			merged.LastUpdated = ev.Time.UTC().Format(time.RFC3339)
			if err := l.svcCtx.API.UpdateTask(ctx, &merged); err != nil {
				sendMarkup(l.svcCtx.Bot, ev.ChatID, "Could not update the task. Please try again.", keyboard.MainMenu())
			} else {
				sendMarkup(l.svcCtx.Bot, ev.ChatID, "Task updated.", keyboard.MainMenu())
			}
			s.Task = session.TaskScratch{}
			return engine.End, nil
		case "task_confirm_edit":
			groupTask := s.Task.Current != nil && s.Task.Current.IsGroupTask()
			sendMarkup(l.svcCtx.Bot, ev.ChatID, "What do you want to change?",
				keyboard.EditTaskOptions(groupTask))
			return stateTaskEditOption, nil
		}
		return engine.End, nil
	})
}

func taskDraft(s *session.Session) *session.TaskDraft {
	if s.Task.Draft == nil {
		s.Task.Draft = &session.TaskDraft{}
	}
	return s.Task.Draft
}

// mergeTaskDraft overlays the collected draft fields onto a copy of the
// task, leaving untouched fields as they were.
func mergeTaskDraft(task *model.Task, draft *session.TaskDraft) model.Task {
	merged := *task
	if draft == nil {
		return merged
	}
	if draft.Title != "" {
		merged.Title = draft.Title
	}
	if draft.Description != "" {
		merged.Description = draft.Description
	}
	if !draft.Deadline.IsZero() {
		merged.Deadline = draft.Deadline
	}
	if draft.Recurring != "" {
		merged.Recurring = draft.Recurring
	}
	return merged
}
