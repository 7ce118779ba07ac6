package task

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_AlphabetAndLength(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		id := NewID()
		require.Len(t, id, IDLength)
		for _, r := range id {
			assert.True(t, strings.ContainsRune(IDAlphabet, r), "id %q contains %q", id, r)
		}
		assert.NotContains(t, id, "0")
		assert.NotContains(t, id, "1")
		assert.NotContains(t, id, "I")
		assert.NotContains(t, id, "O")
		seen[id] = true
	}
	// Sanity check on randomness: 10k draws from ~1M combinations
	// should be nearly collision-free.
	assert.Greater(t, len(seen), 9900)
}

func TestStatusFolders(t *testing.T) {
	want := map[Status]string{
		StatusInbox:     "Inbox",
		StatusNext:      "Next",
		StatusWaiting:   "Waiting",
		StatusScheduled: "Scheduled",
		StatusSomeday:   "Someday",
		StatusCompleted: "Completed",
	}
	for s, folder := range want {
		assert.True(t, s.Valid())
		assert.Equal(t, folder, s.Folder())
	}
	assert.False(t, Status("archived").Valid())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("  NEXT ")
	require.NoError(t, err)
	assert.Equal(t, StatusNext, s)

	_, err = ParseStatus("snoozed")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, (&Task{Status: StatusInbox}).Validate(), ErrTitleRequired)
	assert.ErrorIs(t, (&Task{Title: "x", Status: "nope"}).Validate(), ErrInvalidStatus)
	assert.NoError(t, (&Task{Title: "x", Status: StatusInbox}).Validate())
}

func TestPatchApply(t *testing.T) {
	tk := &Task{Title: "old", Status: StatusInbox, Tags: []string{"keep"}}

	title := "new"
	due := "2025-07-01"
	Patch{Title: &title, Due: &due}.Apply(tk)
	assert.Equal(t, "new", tk.Title)
	assert.Equal(t, "2025-07-01", tk.Due)
	assert.Equal(t, []string{"keep"}, tk.Tags, "unset fields stay put")

	Patch{Tags: []string{"a", "b"}}.Apply(tk)
	assert.Equal(t, []string{"a", "b"}, tk.Tags)
}

func TestClone_IsDeep(t *testing.T) {
	orig := &Task{
		Title:     "x",
		Status:    StatusInbox,
		Tags:      []string{"a"},
		BlockedBy: []string{"Q2RS"},
		Extra:     map[string]any{"k": "v"},
	}
	c := orig.Clone()
	c.Tags[0] = "changed"
	c.Extra["k"] = "other"

	assert.Equal(t, "a", orig.Tags[0])
	assert.Equal(t, "v", orig.Extra["k"])
}
