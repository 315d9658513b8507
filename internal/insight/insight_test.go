package insight

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperjump/autoscan/internal/models"
)

func structured(desc string, status models.Status, project []string, keywords ...models.Keyword) models.ActionItem {
	return models.NewStructured(models.Fields{
		Description: desc,
		Status:      status,
		Project:     project,
		Category:    []string{"會議"},
		Keywords:    keywords,
	})
}

func TestSummarize_structured(t *testing.T) {
	items := []models.ActionItem{
		structured("準備Q4簡報", models.StatusInProgress, []string{"Goonas"},
			models.Keyword{Text: "簡報", Weight: 8}, models.Keyword{Text: "Q4", Weight: 5}),
		structured("更新預算表", "", []string{"Goonas", "Finance"},
			models.Keyword{Text: "簡報", Weight: 3}),
		structured("寄送會議紀錄", models.StatusDone, nil),
	}

	s := Summarize(items)
	require.Equal(t, 3, s.Total)
	require.True(t, s.Structured)
	require.Equal(t, []Count{
		{Label: "未開始", Value: 1},
		{Label: "進行中", Value: 1},
		{Label: "完成", Value: 1},
	}, s.Status)
	require.Equal(t, []Count{{Label: "Goonas", Value: 2}, {Label: "Finance", Value: 1}}, s.Projects)
	require.Equal(t, []Count{{Label: "會議", Value: 3}}, s.Categories)
	require.NotEmpty(t, s.Keywords)
	require.Equal(t, Count{Label: "簡報", Value: 11}, s.Keywords[0])
	require.Contains(t, s.Keywords, Count{Label: "Q4", Value: 5})
}

func TestSummarize_simpleOnly(t *testing.T) {
	s := Summarize([]models.ActionItem{
		models.NewSimple("review the budget"),
		models.NewSimple("budget sign-off"),
	})
	require.Equal(t, 2, s.Total)
	require.False(t, s.Structured)
	require.Empty(t, s.Status)
	require.Empty(t, s.Projects)
	require.Equal(t, Count{Label: "budget", Value: 2}, s.Keywords[0])
}

func TestSummarize_empty(t *testing.T) {
	s := Summarize(nil)
	require.Zero(t, s.Total)
	require.False(t, s.Structured)
	require.Empty(t, s.Keywords)
}

func TestTerms(t *testing.T) {
	terms := Terms("準備Q4簡報 and the review 2024")
	require.Contains(t, terms, "準備")
	require.Contains(t, terms, "簡報")
	require.Contains(t, terms, "review")
	require.NotContains(t, terms, "the")
	require.NotContains(t, terms, "and")
	require.NotContains(t, terms, "2024")
}

func TestItemIndex_Search(t *testing.T) {
	items := []models.ActionItem{
		structured("準備Q4簡報", models.StatusNotStarted, []string{"Goonas"}),
		models.NewSimple("Send the budget to finance"),
		structured("整理客戶回饋", models.StatusDone, []string{"CRM"}),
	}
	idx, err := NewItemIndex(items)
	require.NoError(t, err)
	defer idx.Close()

	hits, err := idx.Search("簡報", 10, false)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, 0, hits[0].Position)
	require.Equal(t, "準備Q4簡報", hits[0].Item.Title())

	hits, err = idx.Search("crm", 10, false)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, 2, hits[0].Position)

	hits, err = idx.Search("budgat", 10, true)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, 1, hits[0].Position)

	hits, err = idx.Search("   ", 10, false)
	require.NoError(t, err)
	require.Empty(t, hits)
}
