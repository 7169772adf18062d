package main

import (
	"fmt"
	"io"
	"text/template"

	"github.com/dustin/go-humanize"
	"github.com/manifoldco/promptui"
	"github.com/olekukonko/tablewriter"
)

var FuncMap = template.FuncMap{
	"humanBytes": func(n int) string {
		return humanize.IBytes(uint64(n))
	},
	"bytesToString": func(b []byte) string { return string(b) },
	"percent": func(part, total int) string {
		if total == 0 {
			return "0%"
		}
		return fmt.Sprintf("%.2f%%", 100*float64(part)/float64(total))
	},
}

func ParseTemplate(body string) *template.Template {
	tpl, err := template.New("").Funcs(promptui.FuncMap).Funcs(FuncMap).Parse(fmt.Sprintf("%s\n", body))
	if err != nil {
		panic(err)
	}
	return tpl
}

func getTable(headers []string, w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	return table
}
