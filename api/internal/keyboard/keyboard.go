// Package keyboard builds the bot's inline and reply keyboards and parses
// selections made from them. Lists are rendered as "<1-based index> -
// <label>" rows; ParseIndex recovers the selection.
package keyboard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/qx/taskmate_robot/api/internal/model"
	"github.com/qx/taskmate_robot/api/internal/perm"
)

var ErrBadSelection = errors.New("selection out of range")

// ParseIndex extracts the leading 1-based index from a rendered list row
// and returns it zero-based. Non-numeric or out-of-range input is
// rejected so the caller can re-prompt without losing the list.
func ParseIndex(input string, length int) (int, error) {
	head := strings.TrimSpace(strings.SplitN(input, " - ", 2)[0])
	idx, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadSelection, input)
	}
	if idx < 1 || idx > length {
		return 0, fmt.Errorf("%w: %d of %d", ErrBadSelection, idx, length)
	}
	return idx - 1, nil
}

// IndexedList renders labels as a one-column reply keyboard of
// "<index> - <label>" rows.
func IndexedList(labels []string) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(labels))
	for i, label := range labels {
		rows = append(rows, []tgbotapi.KeyboardButton{
			tgbotapi.NewKeyboardButton(fmt.Sprintf("%d - %s", i+1, label)),
		})
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.OneTimeKeyboard = true
	kb.ResizeKeyboard = true
	return kb
}

// TaskLabels renders task list rows: title plus short deadline.
func TaskLabels(tasks []model.Task) []string {
	labels := make([]string, 0, len(tasks))
	for _, t := range tasks {
		labels = append(labels, fmt.Sprintf("%s - %s", t.Title, t.Deadline.Format("02.01.2006")))
	}
	return labels
}

// CategoryLabels renders category list rows.
func CategoryLabels(categories []model.Category) []string {
	labels := make([]string, 0, len(categories))
	for _, c := range categories {
		labels = append(labels, c.Name)
	}
	return labels
}

// MemberLabels renders member list rows by display name.
func MemberLabels(members []model.GroupMember, names map[string]string) []string {
	labels := make([]string, 0, len(members))
	for _, m := range members {
		name := names[m.MemberOid]
		if name == "" {
			name = fmt.Sprintf("user %d", m.MemberTid)
		}
		labels = append(labels, name)
	}
	return labels
}

// MainMenu is offered after every finished flow.
func MainMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Tasks", "menu_task"),
			tgbotapi.NewInlineKeyboardButtonData("Finance", "menu_finance"),
			tgbotapi.NewInlineKeyboardButtonData("Groups", "menu_group"),
		),
	)
}

func TaskMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("New", "task_menu_new"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Active", "task_menu_active"),
			tgbotapi.NewInlineKeyboardButtonData("Personal", "task_menu_personal"),
			tgbotapi.NewInlineKeyboardButtonData("Archive", "task_menu_archive"),
		),
	)
}

// TaskActions renders the detail-view actions. Edit and delete appear
// only when the caller may manage the task; the authorization is
// re-checked at commit time regardless of what was rendered.
func TaskActions(canManage bool) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Complete", "task_action_complete"),
		),
	}
	if canManage {
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Edit", "task_action_edit"),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Delete", "task_action_delete"),
			),
		)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Confirmation renders the yes/edit pair used by every confirm screen.
// Tokens are "<prefix>_confirm_yes" and "<prefix>_confirm_edit".
func Confirmation(prefix string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Confirm", prefix+"_confirm_yes"),
			tgbotapi.NewInlineKeyboardButtonData("Edit", prefix+"_confirm_edit"),
		),
	)
}

func EditTaskOptions(groupTask bool) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Title", "task_edit_title"),
			tgbotapi.NewInlineKeyboardButtonData("Description", "task_edit_description"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Deadline", "task_edit_deadline"),
			tgbotapi.NewInlineKeyboardButtonData("Recurrence", "task_edit_recurring"),
		),
	}
	if groupTask {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Assignees", "task_edit_assignees"),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func Recurring() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("One-time"),
			tgbotapi.NewKeyboardButton("Daily"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("Weekly"),
			tgbotapi.NewKeyboardButton("Monthly"),
		),
	)
	kb.OneTimeKeyboard = true
	kb.ResizeKeyboard = true
	return kb
}

func FinancialMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Statistics", "finance_stats"),
			tgbotapi.NewInlineKeyboardButtonData("Add expense", "finance_expense"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Categories", "finance_categories"),
			tgbotapi.NewInlineKeyboardButtonData("Reset day", "finance_reset_day"),
		),
	)
}

func CategoryMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Create", "category_create"),
			tgbotapi.NewInlineKeyboardButtonData("Edit", "category_edit"),
		),
	)
}

func EditCategoryOptions() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Name", "fin_edit_title"),
			tgbotapi.NewInlineKeyboardButtonData("Description", "fin_edit_description"),
			tgbotapi.NewInlineKeyboardButtonData("Limit", "fin_edit_limit"),
		),
	)
}

func BackOrExit() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Back to menu", "nav_back"),
			tgbotapi.NewInlineKeyboardButtonData("Exit", "nav_exit"),
		),
	)
}

func Notifications() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("All", "notify_all"),
			tgbotapi.NewInlineKeyboardButtonData("Day before", "notify_day_before"),
			tgbotapi.NewInlineKeyboardButtonData("Off", "notify_off"),
		),
	)
}

// GroupPicker lists the caller's own group (or a create button when they
// may create one) followed by memberships.
func GroupPicker(created *model.Group, groups []model.Group, canCreate bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if created != nil {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("My group: "+created.Name, "group_open_"+created.GroupOid),
		))
	} else if canCreate {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Create a group", "group_create"),
		))
	}
	for _, g := range groups {
		if created != nil && g.GroupOid == created.GroupOid {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(g.Name, "group_open_"+g.GroupOid),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// GroupActions renders the role-gated action menu from the same
// capability table the handlers authorize against.
func GroupActions(caps []perm.Capability) tgbotapi.InlineKeyboardMarkup {
	labels := map[perm.Capability]struct {
		text, token string
	}{
		perm.CapEditInfo:      {"Edit info", "group_action_info"},
		perm.CapManageAdmins:  {"Admins", "group_action_admins"},
		perm.CapManageMembers: {"Members", "group_action_members"},
		perm.CapTasks:         {"Tasks", "group_action_tasks"},
		perm.CapFinances:      {"Finances", "group_action_finances"},
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, cap := range caps {
		l, ok := labels[cap]
		if !ok {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(l.text, l.token),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// GroupEditOptions is the field picker on the group creation confirm
// screen.
func GroupEditOptions() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Name", "group_edit_name"),
			tgbotapi.NewInlineKeyboardButtonData("Description", "group_edit_description"),
			tgbotapi.NewInlineKeyboardButtonData("Members", "group_edit_members"),
		),
	)
}

func GroupEditInfoOptions() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Name", "group_info_name"),
			tgbotapi.NewInlineKeyboardButtonData("Description", "group_info_description"),
		),
	)
}

func MemberActions() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Remove", "member_remove"),
			tgbotapi.NewInlineKeyboardButtonData("Toggle expenses", "member_toggle_expenses"),
		),
	)
}
