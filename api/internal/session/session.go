// Package session is the per-chat scratch space for multi-turn
// conversations. Slots are grouped by domain so that finishing or
// cancelling one flow never destroys another domain's in-progress state.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qx/taskmate_robot/api/internal/model"
)

// EntryReason distinguishes why an input state was entered: a fresh linear
// pass through the flow, or a targeted single-field revisit from a
// confirmation screen. A revisit returns straight to confirmation.
type EntryReason string

const (
	EntryLinear  EntryReason = "linear"
	EntryRevisit EntryReason = "revisit"
)

// TaskDraft is a task being assembled across conversation turns.
type TaskDraft struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Deadline    time.Time `json:"deadline"`
	Recurring   string    `json:"recurring"`
}

// TaskScratch holds the task domain's slots.
type TaskScratch struct {
	Tasks         []model.Task        `json:"tasks,omitempty"`
	Selected      []model.Task        `json:"selected,omitempty"`
	Current       *model.Task         `json:"current,omitempty"`
	Draft         *TaskDraft          `json:"draft,omitempty"`
	EditingTask   bool                `json:"editing_task,omitempty"`
	Entry         EntryReason         `json:"entry,omitempty"`
	Assignees     []model.GroupMember `json:"assignees,omitempty"`
	AssigneeNames []string            `json:"assignee_names,omitempty"`
}

// GroupDraft is a group being assembled across conversation turns.
type GroupDraft struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	MemberTids  []int64 `json:"member_tids"`
}

// GroupScratch holds the group domain's slots.
type GroupScratch struct {
	Draft        *GroupDraft         `json:"draft,omitempty"`
	Current      *model.Group        `json:"current,omitempty"`
	CallerRow    *model.GroupMember  `json:"caller_row,omitempty"`
	Admins       []model.GroupMember `json:"admins,omitempty"`
	CurrentAdmin *model.GroupMember  `json:"current_admin,omitempty"`
	Candidates   []model.GroupMember `json:"candidates,omitempty"`
	Entry        EntryReason         `json:"entry,omitempty"`
}

// CategoryDraft is a budget category being assembled.
type CategoryDraft struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	BudgetLimit decimal.Decimal `json:"budget_limit"`
}

// ExpenseDraft is an expense being assembled.
type ExpenseDraft struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// FinancialScratch holds the financial domain's slots, shared by the
// personal and group variants of the flow.
type FinancialScratch struct {
	Financial       *model.Financial `json:"financial,omitempty"`
	GroupOid        string           `json:"group_oid,omitempty"`
	CategoryDraft   *CategoryDraft   `json:"category_draft,omitempty"`
	Selected        *model.Category  `json:"selected,omitempty"`
	Edited          *model.Category  `json:"edited,omitempty"`
	EditingCategory bool             `json:"editing_category,omitempty"`
	AddingExpense   bool             `json:"adding_expense,omitempty"`
	ExpenseDraft    *ExpenseDraft    `json:"expense_draft,omitempty"`
	Entry           EntryReason      `json:"entry,omitempty"`
}

// Session is one chat's scratch space.
type Session struct {
	Task      TaskScratch      `json:"task"`
	Group     GroupScratch     `json:"group"`
	Financial FinancialScratch `json:"financial"`
}

// KV is the key-value surface the store needs. go-zero's *redis.Redis
// satisfies it; tests use an in-memory fake.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Del(keys ...string) (int, error)
}

type Store struct {
	kv KV
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

func key(chatID int64) string {
	return fmt.Sprintf("session:%d", chatID)
}

// Load returns the chat's session, or a fresh empty one when none exists.
func (s *Store) Load(chatID int64) (*Session, error) {
	data, err := s.kv.Get(key(chatID))
	if err != nil {
		return nil, fmt.Errorf("session load %d: %w", chatID, err)
	}
	sess := &Session{}
	if data == "" {
		return sess, nil
	}
	if err := json.Unmarshal([]byte(data), sess); err != nil {
		return nil, fmt.Errorf("session decode %d: %w", chatID, err)
	}
	return sess, nil
}

func (s *Store) Save(chatID int64, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session encode %d: %w", chatID, err)
	}
	if err := s.kv.Set(key(chatID), string(data)); err != nil {
		return fmt.Errorf("session save %d: %w", chatID, err)
	}
	return nil
}

// ResetTask clears exactly the task domain's slots.
func (s *Store) ResetTask(chatID int64) error {
	return s.mutate(chatID, func(sess *Session) {
		sess.Task = TaskScratch{}
	})
}

// ResetGroup clears exactly the group domain's slots.
func (s *Store) ResetGroup(chatID int64) error {
	return s.mutate(chatID, func(sess *Session) {
		sess.Group = GroupScratch{}
	})
}

// ResetFinancial clears exactly the financial domain's slots.
func (s *Store) ResetFinancial(chatID int64) error {
	return s.mutate(chatID, func(sess *Session) {
		sess.Financial = FinancialScratch{}
	})
}

// ResetAll drops the whole session, the error boundary's backstop.
func (s *Store) ResetAll(chatID int64) error {
	if _, err := s.kv.Del(key(chatID)); err != nil {
		return fmt.Errorf("session reset %d: %w", chatID, err)
	}
	return nil
}

func (s *Store) mutate(chatID int64, apply func(*Session)) error {
	sess, err := s.Load(chatID)
	if err != nil {
		return err
	}
	apply(sess)
	return s.Save(chatID, sess)
}
