package ui

import (
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// RenderTable writes rows under headers as a borderless table
func RenderTable(w io.Writer, headers []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()
}

// Status colors a step or run status
func Status(status string) string {
	if !supportsColor {
		return status
	}
	switch strings.ToLower(status) {
	case "succeeded", "ok", "success":
		return color.GreenString(status)
	case "failed", "error":
		return color.RedString(status)
	case "skipped":
		return color.YellowString(status)
	default:
		return status
	}
}

// KeyValues renders label/value pairs as a two column table
func KeyValues(w io.Writer, pairs [][2]string) {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetColumnSeparator(":")
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, p := range pairs {
		table.Append([]string{ColorBold(p[0]), p[1]})
	}
	table.Render()
}
