package logic

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/qx/taskmate_robot/api/internal/client"
	"github.com/qx/taskmate_robot/api/internal/engine"
	"github.com/qx/taskmate_robot/api/internal/keyboard"
	"github.com/qx/taskmate_robot/api/internal/model"
	"github.com/qx/taskmate_robot/api/internal/session"
	"github.com/qx/taskmate_robot/api/internal/svc"
)

// Financial conversation states, shared by the personal and group
// variants of the flow.
const (
	stateFinCategoryMenu   engine.State = "fin_category_menu"
	stateFinCategorySelect engine.State = "fin_category_select"
	stateFinCategoryName   engine.State = "fin_category_name"
	stateFinCategoryDesc   engine.State = "fin_category_desc"
	stateFinCategoryLimit  engine.State = "fin_category_limit"
	stateFinConfirmCat     engine.State = "fin_confirm_category"
	stateFinEditOption     engine.State = "fin_edit_option"
	stateFinExpenseAmount  engine.State = "fin_expense_amount"
	stateFinExpenseDesc    engine.State = "fin_expense_desc"
	stateFinConfirmExpense engine.State = "fin_confirm_expense"
	stateFinResetDay       engine.State = "fin_reset_day"
)

// Amounts are signed decimals with up to two fraction digits; a comma
// works as the decimal separator too.
var amountPattern = regexp.MustCompile(`^-?\d+(?:[.,]\d{1,2})?$`)

type FinancialLogic struct {
	svcCtx *svc.ServiceContext
}

func NewFinancialLogic(svcCtx *svc.ServiceContext) *FinancialLogic {
	return &FinancialLogic{svcCtx: svcCtx}
}

// Conversation defines the financial flow state graph.
func (l *FinancialLogic) Conversation() *engine.Spec {
	return &engine.Spec{
		Name: "financial",
		Entry: []engine.Rule{
			{Match: engine.CallbackPrefix("finance_"), Handle: l.MenuSelection},
		},
		States: map[engine.State][]engine.Rule{
			stateFinCategoryMenu:   {{Match: engine.CallbackPrefix("category_"), Handle: l.CategoryMenuSelection}},
			stateFinCategorySelect: {{Match: engine.AnyText(), Handle: l.SelectCategory}},
			stateFinCategoryName:   {{Match: engine.AnyText(), Handle: l.InputCategoryName}},
			stateFinCategoryDesc:   {{Match: engine.AnyText(), Handle: l.InputCategoryDescription}},
			stateFinCategoryLimit:  {{Match: engine.AnyText(), Handle: l.InputCategoryLimit}},
			stateFinConfirmCat:     {{Match: engine.CallbackPrefix("fin_confirm_"), Handle: l.ConfirmCategory}},
			stateFinEditOption:     {{Match: engine.CallbackPrefix("fin_edit_"), Handle: l.SelectEditOption}},
			stateFinExpenseAmount:  {{Match: engine.AnyText(), Handle: l.InputExpenseAmount}},
			stateFinExpenseDesc:    {{Match: engine.AnyText(), Handle: l.InputExpenseDescription}},
			stateFinConfirmExpense: {{Match: engine.CallbackPrefix("expense_confirm_"), Handle: l.ConfirmExpense}},
			stateFinResetDay:       {{Match: engine.AnyText(), Handle: l.InputResetDay}},
		},
		Cancel: l.cancel,
	}
}

func (l *FinancialLogic) cancel(ctx context.Context, ev engine.Event) (engine.State, error) {
	if err := l.svcCtx.Sessions.ResetFinancial(ev.ChatID); err != nil {
		return engine.End, err
	}
	sendMarkup(l.svcCtx.Bot, ev.ChatID, msgCancelled, keyboard.MainMenu())
	return engine.End, nil
}

// Menu handles /finance: the caller's personal ledger, created lazily on
// first use.
func (l *FinancialLogic) Menu(ctx context.Context, ev engine.Event) (engine.State, error) {
	if err := l.svcCtx.Sessions.ResetAll(ev.ChatID); err != nil {
		return engine.End, err
	}
	fin, err := l.svcCtx.API.GetUserFinancial(ctx, ev.UserID)
	if errors.Is(err, client.ErrNotFound) {
		user, userErr := l.svcCtx.API.GetUser(ctx, ev.UserID)
		if userErr != nil {
			send(l.svcCtx.Bot, ev.ChatID, "Please run /start first.")
			return engine.End, nil
		}
		fresh := model.NewFinancial(ev.Time)
		fresh.UserOid = user.UserOid
		oid, createErr := l.svcCtx.API.CreateFinancial(ctx, fresh)
		if createErr != nil {
			send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
			return engine.End, nil
		}
		fresh.FinancialOid = oid
		fin = fresh
	} else if err != nil {
		send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
		return engine.End, nil
	}

	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		s.Financial.Financial = fin
		s.Financial.GroupOid = ""
		summary := model.Summarize(fin)
		text := fmt.Sprintf(
			"FINANCES\n\nCategories: %d\nSpent: %s of %s\nDepleted categories: %d\nBudget resets on day %d",
			len(fin.Categories), summary.TotalSpent.StringFixed(2), summary.TotalLimit.StringFixed(2),
			summary.Depleted, summary.ResetDay)
		sendMarkup(l.svcCtx.Bot, ev.ChatID, text, keyboard.FinancialMenu())
		return engine.End, nil
	})
}

// MenuSelection is the conversation entry point: a press on the financial
// menu. The group variant re-checks finance access on every entry.
func (l *FinancialLogic) MenuSelection(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		fin := s.Financial.Financial
		if fin == nil {
			send(l.svcCtx.Bot, ev.ChatID, "Open /finance first.")
			return engine.End, nil
		}
		if !l.hasAccess(ctx, s, ev.UserID) {
			send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
			return engine.End, nil
		}
		switch ev.Callback {
		case "finance_stats":
			return l.showStatistics(ctx, ev, s)
		case "finance_expense":
			if len(fin.Categories) == 0 {
				sendMarkup(l.svcCtx.Bot, ev.ChatID, "Create a category first.", keyboard.FinancialMenu())
				return engine.End, nil
			}
			s.Financial.AddingExpense = true
			s.Financial.EditingCategory = false
			sendMarkup(l.svcCtx.Bot, ev.ChatID, "Choose a category:",
				keyboard.IndexedList(keyboard.CategoryLabels(fin.Categories)))
			return stateFinCategorySelect, nil
		case "finance_categories":
			sendMarkup(l.svcCtx.Bot, ev.ChatID, "Categories:", keyboard.CategoryMenu())
			return stateFinCategoryMenu, nil
		case "finance_reset_day":
			removeKeyboard(l.svcCtx.Bot, ev.ChatID,
				fmt.Sprintf("The budget cycle currently resets on day %d.\n"+
					"Enter a new day of the month (1-31):", fin.ResetDay))
			return stateFinResetDay, nil
		}
		return engine.End, nil
	})
}

// hasAccess re-authorizes the group variant against a fresh roster. The
// personal ledger is always the caller's own.
func (l *FinancialLogic) hasAccess(ctx context.Context, s *session.Session, tid int64) bool {
	if s.Financial.GroupOid == "" {
		return true
	}
	group, err := l.svcCtx.API.GetGroup(ctx, s.Financial.GroupOid)
	if err != nil {
		return false
	}
	member, ok := group.MemberByTid(tid)
	return ok && member.HasFinancialAccess()
}

// showStatistics renders the two-tier view: the all-time summary followed
// by per-category spending scoped to the current billing cycle.
func (l *FinancialLogic) showStatistics(ctx context.Context, ev engine.Event, s *session.Session) (engine.State, error) {
	fin, err := l.svcCtx.API.GetFinancial(ctx, s.Financial.Financial.FinancialOid)
	if err != nil {
		send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
		return engine.End, nil
	}
	s.Financial.Financial = fin

	summary := model.Summarize(fin)
	cycleStart := model.CycleStart(fin.ResetDay, ev.Time)
	var b strings.Builder
	fmt.Fprintf(&b, "All time: %s of %s, %d depleted\n\n",
		summary.TotalSpent.StringFixed(2), summary.TotalLimit.StringFixed(2), summary.Depleted)
	fmt.Fprintf(&b, "Current cycle (since %s):\n", cycleStart.Format("02.01.2006"))
	for _, stat := range model.CycleStatistics(fin, ev.Time) {
		line := fmt.Sprintf("%s: %s of %s", stat.Name, stat.Spent.StringFixed(2), stat.Limit.StringFixed(2))
		if stat.Marker != "" {
			line = stat.Marker + " " + line
		}
		b.WriteString(line + "\n")
	}
	if len(fin.Categories) == 0 {
		b.WriteString("No categories yet.\n")
	}
	sendMarkup(l.svcCtx.Bot, ev.ChatID, b.String(), keyboard.FinancialMenu())
	return engine.End, nil
}

func (l *FinancialLogic) CategoryMenuSelection(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		fin := s.Financial.Financial
		switch ev.Callback {
		case "category_create":
			s.Financial.CategoryDraft = &session.CategoryDraft{}
			s.Financial.EditingCategory = false
			s.Financial.AddingExpense = false
			removeKeyboard(l.svcCtx.Bot, ev.ChatID, "Enter the category name:")
			return stateFinCategoryName, nil
		case "category_edit":
			if len(fin.Categories) == 0 {
				sendMarkup(l.svcCtx.Bot, ev.ChatID, "No categories to edit.", keyboard.FinancialMenu())
				return engine.End, nil
			}
			s.Financial.AddingExpense = false
			s.Financial.EditingCategory = true
			sendMarkup(l.svcCtx.Bot, ev.ChatID, "Choose a category to edit:",
				keyboard.IndexedList(keyboard.CategoryLabels(fin.Categories)))
			return stateFinCategorySelect, nil
		}
		return stateFinCategoryMenu, nil
	})
}

// SelectCategory resolves an indexed pick for either branch: expense
// entry or category editing.
func (l *FinancialLogic) SelectCategory(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		fin := s.Financial.Financial
		idx, err := keyboard.ParseIndex(ev.Text, len(fin.Categories))
		if err != nil {
			send(l.svcCtx.Bot, ev.ChatID, msgBadInput)
			return stateFinCategorySelect, nil
		}
		picked := fin.Categories[idx]
		s.Financial.Selected = &picked

		if s.Financial.AddingExpense {
			s.Financial.ExpenseDraft = &session.ExpenseDraft{}
			removeKeyboard(l.svcCtx.Bot, ev.ChatID,
				"Enter the amount. A negative amount records a reimbursement:")
			return stateFinExpenseAmount, nil
		}

		s.Financial.CategoryDraft = &session.CategoryDraft{}
		sendMarkup(l.svcCtx.Bot, ev.ChatID,
			fmt.Sprintf("Category: %s\n%s\nLimit: %s\n\nWhat do you want to change?",
				picked.Name, picked.Description, picked.BudgetLimit.StringFixed(2)),
			keyboard.EditCategoryOptions())
		return stateFinEditOption, nil
	})
}

func (l *FinancialLogic) InputCategoryName(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		categoryDraft(s).Name = strings.TrimSpace(ev.Text)
		if s.Financial.Entry == session.EntryRevisit {
			s.Financial.Entry = ""
			return l.confirmCategory(ev, s)
		}
		send(l.svcCtx.Bot, ev.ChatID, "Enter the category description:")
		return stateFinCategoryDesc, nil
	})
}

func (l *FinancialLogic) InputCategoryDescription(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		categoryDraft(s).Description = strings.TrimSpace(ev.Text)
		if s.Financial.Entry == session.EntryRevisit {
			s.Financial.Entry = ""
			return l.confirmCategory(ev, s)
		}
		send(l.svcCtx.Bot, ev.ChatID, "Enter the budget limit for one cycle:")
		return stateFinCategoryLimit, nil
	})
}

func (l *FinancialLogic) InputCategoryLimit(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		limit, err := parseAmount(ev.Text)
		if err != nil || !limit.IsPositive() {
			send(l.svcCtx.Bot, ev.ChatID, "Enter a positive number, e.g. 500 or 149.90:")
			return stateFinCategoryLimit, nil
		}
		categoryDraft(s).BudgetLimit = limit
		s.Financial.Entry = ""
		return l.confirmCategory(ev, s)
	})
}

func (l *FinancialLogic) confirmCategory(ev engine.Event, s *session.Session) (engine.State, error) {
	var preview model.Category
	if s.Financial.EditingCategory && s.Financial.Selected != nil {
		preview = mergeCategoryDraft(s.Financial.Selected, s.Financial.CategoryDraft)
	} else {
		draft := categoryDraft(s)
		preview = model.Category{Name: draft.Name, Description: draft.Description, BudgetLimit: draft.BudgetLimit}
	}
	text := fmt.Sprintf("Confirm the category:\nName: %s\nDescription: %s\nLimit per cycle: %s\n\nCancel - /cancel",
		preview.Name, preview.Description, preview.BudgetLimit.StringFixed(2))
	sendMarkup(l.svcCtx.Bot, ev.ChatID, text, keyboard.Confirmation("fin"))
	return stateFinConfirmCat, nil
}

// ConfirmCategory commits the draft: a fresh category on creation, a
// natural-key replacement when editing.
func (l *FinancialLogic) ConfirmCategory(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		switch ev.Callback {
		case "fin_confirm_yes":
			if !l.hasAccess(ctx, s, ev.UserID) {
				send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
				return engine.End, nil
			}
			fin := s.Financial.Financial
			if s.Financial.EditingCategory && s.Financial.Selected != nil {
				old := s.Financial.Selected
				updated := mergeCategoryDraft(old, s.Financial.CategoryDraft)
				if err := l.svcCtx.API.UpdateCategory(ctx, fin.FinancialOid, old.Name, old.Description, &updated); err != nil {
					sendMarkup(l.svcCtx.Bot, ev.ChatID, msgTryAgain, keyboard.FinancialMenu())
					return engine.End, nil
				}
				send(l.svcCtx.Bot, ev.ChatID, "Category updated.")
			} else {
				draft := categoryDraft(s)
				category := &model.Category{
					CategoryId:  model.OidUnassigned,
					Name:        draft.Name,
					Description: draft.Description,
					BudgetLimit: draft.BudgetLimit,
					Expenses:    []model.Expense{},
				}
				if err := l.svcCtx.API.AddCategory(ctx, fin.FinancialOid, category); err != nil {
					sendMarkup(l.svcCtx.Bot, ev.ChatID, msgTryAgain, keyboard.FinancialMenu())
					return engine.End, nil
				}
				send(l.svcCtx.Bot, ev.ChatID, "Category created.")
			}
			return l.finishMutation(ctx, ev, s)
		case "fin_confirm_edit":
			sendMarkup(l.svcCtx.Bot, ev.ChatID, "What do you want to change?", keyboard.EditCategoryOptions())
			return stateFinEditOption, nil
		}
		return engine.End, nil
	})
}

func (l *FinancialLogic) SelectEditOption(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		s.Financial.Entry = session.EntryRevisit
		switch ev.Callback {
		case "fin_edit_title":
			removeKeyboard(l.svcCtx.Bot, ev.ChatID, "Enter the new name:")
			return stateFinCategoryName, nil
		case "fin_edit_description":
			removeKeyboard(l.svcCtx.Bot, ev.ChatID, "Enter the new description:")
			return stateFinCategoryDesc, nil
		case "fin_edit_limit":
			removeKeyboard(l.svcCtx.Bot, ev.ChatID, "Enter the new budget limit:")
			return stateFinCategoryLimit, nil
		}
		return stateFinEditOption, nil
	})
}

// InputExpenseAmount parses the signed amount. Rejection keeps the state
// so the user just types again.
func (l *FinancialLogic) InputExpenseAmount(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		amount, err := parseAmount(ev.Text)
		if err != nil || amount.IsZero() {
			send(l.svcCtx.Bot, ev.ChatID,
				"Enter a non-zero amount, e.g. 250, 19.99 or -100 for a reimbursement:")
			return stateFinExpenseAmount, nil
		}
		expenseDraft(s).Amount = amount
		send(l.svcCtx.Bot, ev.ChatID, "What was it for?")
		return stateFinExpenseDesc, nil
	})
}

func (l *FinancialLogic) InputExpenseDescription(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		draft := expenseDraft(s)
		draft.Description = strings.TrimSpace(ev.Text)
		kind := "expense"
		if draft.Amount.IsNegative() {
			kind = "reimbursement"
		}
		text := fmt.Sprintf("Confirm the %s:\nCategory: %s\nAmount: %s\nDescription: %s\n\nCancel - /cancel",
			kind, s.Financial.Selected.Name, draft.Amount.StringFixed(2), draft.Description)
		sendMarkup(l.svcCtx.Bot, ev.ChatID, text, keyboard.Confirmation("expense"))
		return stateFinConfirmExpense, nil
	})
}

// ConfirmExpense commits the expense and reports the category's cycle
// standing with the committed amount included. The edit branch re-enters
// the amount input with the previous values echoed.
func (l *FinancialLogic) ConfirmExpense(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		draft := expenseDraft(s)
		switch ev.Callback {
		case "expense_confirm_yes":
			if !l.hasAccess(ctx, s, ev.UserID) {
				send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
				return engine.End, nil
			}
			user, err := l.svcCtx.API.GetUser(ctx, ev.UserID)
			if err != nil {
				send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
				return engine.End, nil
			}
			expense := &model.Expense{
				ExpenseId:   model.OidUnassigned,
				Amount:      draft.Amount,
				Description: draft.Description,
				Date:        ev.Time.UTC(),
				UserOid:     user.UserOid,
			}
			fin := s.Financial.Financial
			if err := l.svcCtx.API.AddExpense(ctx, fin.FinancialOid, s.Financial.Selected, expense); err != nil {
				sendMarkup(l.svcCtx.Bot, ev.ChatID, msgTryAgain, keyboard.FinancialMenu())
				return engine.End, nil
			}
			send(l.svcCtx.Bot, ev.ChatID, "Recorded."+l.budgetNote(ctx, ev, s))
			return l.finishMutation(ctx, ev, s)
		case "expense_confirm_edit":
			send(l.svcCtx.Bot, ev.ChatID, fmt.Sprintf(
				"Previous: %s, \"%s\".\nEnter the amount again:",
				draft.Amount.StringFixed(2), draft.Description))
			s.Financial.ExpenseDraft = &session.ExpenseDraft{}
			return stateFinExpenseAmount, nil
		}
		return engine.End, nil
	})
}

// budgetNote re-reads the ledger after a commit and warns when the picked
// category crossed the warning or stop threshold for the current cycle.
func (l *FinancialLogic) budgetNote(ctx context.Context, ev engine.Event, s *session.Session) string {
	fin, err := l.svcCtx.API.GetFinancial(ctx, s.Financial.Financial.FinancialOid)
	if err != nil || s.Financial.Selected == nil {
		return ""
	}
	s.Financial.Financial = fin
	for _, stat := range model.CycleStatistics(fin, ev.Time) {
		if stat.Name != s.Financial.Selected.Name {
			continue
		}
		switch stat.Marker {
		case model.MarkerStop:
			return fmt.Sprintf("\n%s '%s' is over its limit: %s of %s this cycle.",
				stat.Marker, stat.Name, stat.Spent.StringFixed(2), stat.Limit.StringFixed(2))
		case model.MarkerWarning:
			return fmt.Sprintf("\n%s '%s' is close to its limit: %s of %s this cycle.",
				stat.Marker, stat.Name, stat.Spent.StringFixed(2), stat.Limit.StringFixed(2))
		}
	}
	return ""
}

// InputResetDay commits a new cycle anchor day. Days past a short month's
// end clamp at statistics time, not here, so 31 is a valid anchor.
func (l *FinancialLogic) InputResetDay(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		day, err := strconv.Atoi(strings.TrimSpace(ev.Text))
		if err != nil || day < 1 || day > 31 {
			send(l.svcCtx.Bot, ev.ChatID, "Enter a number between 1 and 31:")
			return stateFinResetDay, nil
		}
		if !l.hasAccess(ctx, s, ev.UserID) {
			send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
			return engine.End, nil
		}
		fin := s.Financial.Financial
		updated := *fin
		updated.ResetDay = day
		if err := l.svcCtx.API.UpdateFinancial(ctx, &updated); err != nil {
			sendMarkup(l.svcCtx.Bot, ev.ChatID, msgTryAgain, keyboard.FinancialMenu())
			return engine.End, nil
		}
		s.Financial.Financial = &updated
		text := fmt.Sprintf("The budget cycle now resets on day %d.", day)
		if day > 28 {
			text += " In shorter months it resets on the last day."
		}
		sendMarkup(l.svcCtx.Bot, ev.ChatID, text, keyboard.FinancialMenu())
		return engine.End, nil
	})
}

// finishMutation refreshes the cached ledger and clears the flow scratch,
// keeping the ledger binding so the menu stays usable.
func (l *FinancialLogic) finishMutation(ctx context.Context, ev engine.Event, s *session.Session) (engine.State, error) {
	fin, err := l.svcCtx.API.GetFinancial(ctx, s.Financial.Financial.FinancialOid)
	if err == nil {
		s.Financial.Financial = fin
	}
	groupOid := s.Financial.GroupOid
	s.Financial = session.FinancialScratch{
		Financial: s.Financial.Financial,
		GroupOid:  groupOid,
	}
	sendMarkup(l.svcCtx.Bot, ev.ChatID, "Anything else?", keyboard.FinancialMenu())
	return engine.End, nil
}

func parseAmount(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if !amountPattern.MatchString(trimmed) {
		return decimal.Zero, fmt.Errorf("bad amount %q", input)
	}
	return decimal.NewFromString(strings.ReplaceAll(trimmed, ",", "."))
}

func categoryDraft(s *session.Session) *session.CategoryDraft {
	if s.Financial.CategoryDraft == nil {
		s.Financial.CategoryDraft = &session.CategoryDraft{}
	}
	return s.Financial.CategoryDraft
}

func expenseDraft(s *session.Session) *session.ExpenseDraft {
	if s.Financial.ExpenseDraft == nil {
		s.Financial.ExpenseDraft = &session.ExpenseDraft{}
	}
	return s.Financial.ExpenseDraft
}

// mergeCategoryDraft overlays collected draft fields onto a copy of the
// category, keeping its expense history.
func mergeCategoryDraft(category *model.Category, draft *session.CategoryDraft) model.Category {
	merged := *category
	if draft == nil {
		return merged
	}
	if draft.Name != "" {
		merged.Name = draft.Name
	}
	if draft.Description != "" {
		merged.Description = draft.Description
	}
	if draft.BudgetLimit.IsPositive() {
		merged.BudgetLimit = draft.BudgetLimit
	}
	return merged
}
