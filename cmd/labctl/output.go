package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Async-Ng/ElecLab-sub001/internal/lab/entity"
)

type printer struct {
	w    io.Writer
	json bool
}

func (p *printer) printJSON(v interface{}) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) table(headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func (p *printer) requests(items []entity.UnifiedRequest, total int64) error {
	if p.json {
		return p.printJSON(items)
	}
	rows := make([][]string, 0, len(items))
	for _, r := range items {
		rows = append(rows, []string{
			r.ID, string(r.Type), string(r.Status), string(r.Priority),
			r.RequesterID, truncate(r.Title, 40), formatTime(r.CreatedAt),
		})
	}
	if err := p.table([]string{"ID", "TYPE", "STATUS", "PRIORITY", "REQUESTER", "TITLE", "CREATED"}, rows); err != nil {
		return err
	}
	if total >= 0 {
		fmt.Fprintf(p.w, "%d of %d\n", len(items), total)
	}
	return nil
}

func (p *printer) request(r *entity.UnifiedRequest) error {
	if p.json {
		return p.printJSON(r)
	}
	rows := [][]string{
		{"id", r.ID},
		{"type", string(r.Type)},
		{"status", string(r.Status)},
		{"priority", string(r.Priority)},
		{"requester", r.RequesterID},
		{"title", r.Title},
		{"description", r.Description},
		{"version", strconv.Itoa(r.Version)},
	}
	if r.RoomID != "" {
		rows = append(rows, []string{"room", r.RoomID})
	}
	for _, m := range r.Materials {
		rows = append(rows, []string{"material", fmt.Sprintf("%s x%d %s", m.MaterialID, m.Quantity, m.Reason)})
	}
	for _, a := range r.Attachments {
		rows = append(rows, []string{"attachment", a.FileName})
	}
	if r.ReviewedBy != "" {
		rows = append(rows, []string{"reviewed", r.ReviewedBy + " " + formatTimePtr(r.ReviewedAt) + " " + r.ReviewNote})
	}
	if r.HandledBy != "" {
		rows = append(rows, []string{"handled", r.HandledBy + " " + formatTimePtr(r.HandledAt)})
	}
	if r.CompletedBy != "" {
		rows = append(rows, []string{"completed", r.CompletedBy + " " + formatTimePtr(r.CompletedAt) + " " + r.CompletionNote})
	}
	return p.table([]string{"FIELD", "VALUE"}, rows)
}

func (p *printer) activities(items []entity.RequestActivity) error {
	if p.json {
		return p.printJSON(items)
	}
	rows := make([][]string, 0, len(items))
	for _, a := range items {
		rows = append(rows, []string{formatTime(a.CreatedAt), a.Action, a.FromStatus, a.ToStatus, a.OperatorID, a.Note})
	}
	return p.table([]string{"TIME", "ACTION", "FROM", "TO", "OPERATOR", "NOTE"}, rows)
}

func (p *printer) materials(items []entity.Material) error {
	if p.json {
		return p.printJSON(items)
	}
	rows := make([][]string, 0, len(items))
	for _, m := range items {
		rows = append(rows, []string{m.ID, m.Code, m.Name, m.Category, strconv.Itoa(m.Quantity) + " " + m.Unit})
	}
	return p.table([]string{"ID", "CODE", "NAME", "CATEGORY", "STOCK"}, rows)
}

func (p *printer) rooms(items []entity.Room) error {
	if p.json {
		return p.printJSON(items)
	}
	rows := make([][]string, 0, len(items))
	for _, r := range items {
		rows = append(rows, []string{r.ID, r.Code, r.Name, r.Building, strconv.Itoa(r.Capacity)})
	}
	return p.table([]string{"ID", "CODE", "NAME", "BUILDING", "CAPACITY"}, rows)
}

func (p *printer) users(items []entity.User) error {
	if p.json {
		return p.printJSON(items)
	}
	rows := make([][]string, 0, len(items))
	for _, u := range items {
		rows = append(rows, []string{u.ID, u.Name, u.Email, strings.Join(u.Roles, ","), u.Status})
	}
	return p.table([]string{"ID", "NAME", "EMAIL", "ROLES", "STATUS"}, rows)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
