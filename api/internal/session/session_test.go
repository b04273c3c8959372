package session

import (
	"testing"
	"time"

	"github.com/qx/taskmate_robot/api/internal/model"
)

// fakeKV mimics the redis client's behavior of returning an empty string
// for a missing key.
type fakeKV struct {
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}}
}

func (f *fakeKV) Get(key string) (string, error) {
	return f.data[key], nil
}

func (f *fakeKV) Set(key, value string) error {
	f.data[key] = value
	return nil
}

func (f *fakeKV) Del(keys ...string) (int, error) {
	n := 0
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

func TestLoadMissingReturnsEmpty(t *testing.T) {
	store := NewStore(newFakeKV())
	sess, err := store.Load(42)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sess.Task.Draft != nil || sess.Group.Current != nil || sess.Financial.Financial != nil {
		t.Errorf("fresh session not empty: %+v", sess)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(newFakeKV())
	sess := &Session{
		Task: TaskScratch{
			Draft: &TaskDraft{
				Title:     "water plants",
				Deadline:  time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC),
				Recurring: "weekly",
			},
			Entry: EntryRevisit,
		},
		Group: GroupScratch{
			Current: &model.Group{GroupOid: "g1", Name: "home"},
		},
	}
	if err := store.Save(7, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load(7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Task.Draft == nil || loaded.Task.Draft.Title != "water plants" {
		t.Errorf("task draft lost: %+v", loaded.Task.Draft)
	}
	if loaded.Task.Entry != EntryRevisit {
		t.Errorf("entry reason = %q", loaded.Task.Entry)
	}
	if loaded.Group.Current == nil || loaded.Group.Current.GroupOid != "g1" {
		t.Errorf("group lost: %+v", loaded.Group.Current)
	}
}

func TestResetIsDomainScoped(t *testing.T) {
	store := NewStore(newFakeKV())
	sess := &Session{
		Task:      TaskScratch{Draft: &TaskDraft{Title: "t"}},
		Group:     GroupScratch{Current: &model.Group{GroupOid: "g1"}},
		Financial: FinancialScratch{GroupOid: "g1"},
	}
	if err := store.Save(7, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := store.ResetTask(7); err != nil {
		t.Fatalf("ResetTask: %v", err)
	}
	loaded, _ := store.Load(7)
	if loaded.Task.Draft != nil {
		t.Error("task scratch survived ResetTask")
	}
	if loaded.Group.Current == nil {
		t.Error("ResetTask destroyed group scratch")
	}
	if loaded.Financial.GroupOid != "g1" {
		t.Error("ResetTask destroyed financial scratch")
	}

	if err := store.ResetFinancial(7); err != nil {
		t.Fatalf("ResetFinancial: %v", err)
	}
	loaded, _ = store.Load(7)
	if loaded.Financial.GroupOid != "" {
		t.Error("financial scratch survived ResetFinancial")
	}
	if loaded.Group.Current == nil {
		t.Error("ResetFinancial destroyed group scratch")
	}
}

func TestResetAll(t *testing.T) {
	kv := newFakeKV()
	store := NewStore(kv)
	if err := store.Save(7, &Session{Task: TaskScratch{Draft: &TaskDraft{Title: "t"}}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.ResetAll(7); err != nil {
		t.Fatalf("ResetAll: %v", err)
	}
	if len(kv.data) != 0 {
		t.Errorf("key not deleted: %v", kv.data)
	}
	loaded, err := store.Load(7)
	if err != nil {
		t.Fatalf("Load after reset: %v", err)
	}
	if loaded.Task.Draft != nil {
		t.Error("scratch survived ResetAll")
	}
}

func TestSessionsAreIsolatedPerChat(t *testing.T) {
	store := NewStore(newFakeKV())
	if err := store.Save(1, &Session{Task: TaskScratch{Draft: &TaskDraft{Title: "mine"}}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	other, err := store.Load(2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if other.Task.Draft != nil {
		t.Error("chat 2 sees chat 1's draft")
	}
}
