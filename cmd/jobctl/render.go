package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"docgen-backend/internal/engine"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderStatus(w io.Writer, st engine.Status) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.SetBorder(true)
	table.Append([]string{"Job ID", st.JobID})
	table.Append([]string{"Type", st.Type})
	table.Append([]string{"Subject", st.SubjectID})
	table.Append([]string{"Status", st.Status})
	table.Append([]string{"Progress", strconv.Itoa(st.Progress) + "%"})
	table.Append([]string{"Sections", fmt.Sprintf("%d/%d", st.CompletedSections, st.TotalSections)})
	table.Append([]string{"Retries", strconv.Itoa(st.RetryCount)})
	table.Append([]string{"Can Resume", strconv.FormatBool(st.CanResume)})
	if st.ErrorCode != "" {
		table.Append([]string{"Error Code", st.ErrorCode})
	}
	if st.Error != nil {
		table.Append([]string{"Error", *st.Error})
	}
	if st.Result != nil {
		table.Append([]string{"Document", fmt.Sprintf("%s (v%d)", st.Result.DocumentVersionID, st.Result.Version)})
	}
	table.Append([]string{"Created", st.CreatedAt.Format(time.RFC3339)})
	table.Render()
}

func renderOutcome(w io.Writer, out engine.Outcome) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Job ID", "Status", "Error Code", "Can Resume"})
	table.SetBorder(true)
	table.Append([]string{out.JobID, out.Status, out.ErrorCode, strconv.FormatBool(out.CanResume)})
	table.Render()
}

func renderResumable(w io.Writer, items []engine.ResumableJob) {
	if len(items) == 0 {
		fmt.Fprintln(w, "no resumable jobs")
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Job ID", "Type", "Subject", "Sections", "Error", "Updated At"})
	table.SetBorder(true)
	table.SetRowLine(true)
	for _, item := range items {
		table.Append([]string{
			item.JobID,
			item.JobType,
			item.SubjectID,
			fmt.Sprintf("%d/%d", item.CompletedSections, item.TotalSections),
			item.ErrorMessage,
			item.UpdatedAt.Format(time.RFC3339),
		})
	}
	table.Render()
}
