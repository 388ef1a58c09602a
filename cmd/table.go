package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

func renderBooks(books []models.BookRecord) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Title", "Author", "Status", "Age Rating", "Pages", "Added"})

	for _, b := range books {
		pages := ""
		if b.TotalPages != nil {
			pages = fmt.Sprintf("%d/%d", b.CurrentPage, *b.TotalPages)
		}
		tw.AppendRow(table.Row{b.Title, b.Author, string(b.Status), b.AgeRating, pages, b.DateAdded.Format("2006-01-02")})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
