package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Async-Ng/ElecLab-sub001/internal/client"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/entity"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/service"
	"github.com/spf13/cobra"
)

func newRequestsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "requests",
		Aliases: []string{"req"},
		Short:   "List, submit and process lab requests",
	}
	cmd.AddCommand(
		newRequestsListCmd(a),
		newRequestsGetCmd(a),
		newRequestsActivitiesCmd(a),
		newRequestsCreateCmd(a),
		newRequestsEditCmd(a),
		newRequestsDeleteCmd(a),
		newRequestsReviewCmd(a),
		newRequestsHandleCmd(a),
		newRequestsCompleteCmd(a),
	)
	return cmd
}

func newRequestsListCmd(a *app) *cobra.Command {
	var q client.ListQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests visible to the caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := a.session.API.ListRequests(cmd.Context(), q)
			if err != nil {
				return err
			}
			return a.out.requests(page.Items, page.Total)
		},
	}
	f := cmd.Flags()
	f.StringVar(&q.Type, "type", "", "filter by request type")
	f.StringVar(&q.Status, "status", "", "filter by status")
	f.StringVar(&q.Priority, "priority", "", "filter by priority")
	f.StringVar(&q.Keyword, "keyword", "", "match title or description")
	f.IntVar(&q.Page, "page", 1, "page number")
	f.IntVar(&q.PageSize, "page-size", 20, "items per page (max 100)")
	f.BoolVar(&q.Fresh, "fresh", false, "ignore cached listings")
	return cmd
}

func newRequestsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := a.session.API.GetRequest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.out.request(req)
		},
	}
}

func newRequestsActivitiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "activities <id>",
		Short: "Show the audit trail of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.session.API.ListActivities(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.out.activities(items)
		},
	}
}

type requestFlags struct {
	Type        string
	Title       string
	Description string
	Priority    string
	RoomID      string
	Materials   []string
	Attachments []string
}

func newRequestsCreateCmd(a *app) *cobra.Command {
	var rf requestFlags
	cmd := &cobra.Command{
		Use:   "create --type <type> --title <title> --description <text>",
		Short: "Submit a new request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lines, err := parseMaterials(rf.Materials)
			if err != nil {
				return err
			}
			in := service.CreateRequestInput{
				Type:        entity.RequestType(rf.Type),
				Title:       rf.Title,
				Description: rf.Description,
				Priority:    entity.Priority(rf.Priority),
				RoomID:      rf.RoomID,
				Materials:   lines,
				Attachments: parseAttachments(rf.Attachments),
			}
			req, err := a.session.Requests.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.out.request(req)
		},
	}
	f := cmd.Flags()
	f.StringVar(&rf.Type, "type", "", "request type, e.g. documents or material_allocation")
	f.StringVar(&rf.Title, "title", "", "short title")
	f.StringVar(&rf.Description, "description", "", "what is needed and why")
	f.StringVar(&rf.Priority, "priority", "", "low, medium or high (default medium)")
	f.StringVar(&rf.RoomID, "room", "", "room id (required for material_repair)")
	f.StringArrayVar(&rf.Materials, "material", nil, "material line id:quantity[:reason], repeatable")
	f.StringArrayVar(&rf.Attachments, "attachment", nil, "attachment file name, repeatable")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("description")
	return cmd
}

func newRequestsEditCmd(a *app) *cobra.Command {
	var rf requestFlags
	var version int
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a pending request owned by the caller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := service.UpdateRequestInput{Version: version}
			f := cmd.Flags()
			if f.Changed("title") {
				in.Title = &rf.Title
			}
			if f.Changed("description") {
				in.Description = &rf.Description
			}
			if f.Changed("priority") {
				p := entity.Priority(rf.Priority)
				in.Priority = &p
			}
			if f.Changed("room") {
				in.RoomID = &rf.RoomID
			}
			if f.Changed("material") {
				lines, err := parseMaterials(rf.Materials)
				if err != nil {
					return err
				}
				in.Materials = lines
			}
			if f.Changed("attachment") {
				in.Attachments = parseAttachments(rf.Attachments)
			}
			req, err := a.session.Requests.Edit(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			return a.out.request(req)
		},
	}
	f := cmd.Flags()
	f.StringVar(&rf.Title, "title", "", "new title")
	f.StringVar(&rf.Description, "description", "", "new description")
	f.StringVar(&rf.Priority, "priority", "", "new priority")
	f.StringVar(&rf.RoomID, "room", "", "new room id")
	f.StringArrayVar(&rf.Materials, "material", nil, "replace material lines, id:quantity[:reason]")
	f.StringArrayVar(&rf.Attachments, "attachment", nil, "replace attachments")
	f.IntVar(&version, "version", 0, "expected version; rejected if the request changed")
	return cmd
}

func newRequestsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a pending request owned by the caller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Requests.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newRequestsReviewCmd(a *app) *cobra.Command {
	var in service.ReviewInput
	cmd := &cobra.Command{
		Use:   "review <id> --status approved|rejected",
		Short: "Approve or reject a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := a.session.Requests.Review(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			return a.out.request(req)
		},
	}
	cmd.Flags().StringVar((*string)(&in.Status), "status", "", "approved or rejected")
	cmd.Flags().StringVar(&in.ReviewNote, "note", "", "review note")
	cmd.MarkFlagRequired("status")
	return cmd
}

func newRequestsHandleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "handle <id>",
		Short: "Start processing an approved material request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := a.session.Requests.Handle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.out.request(req)
		},
	}
}

func newRequestsCompleteCmd(a *app) *cobra.Command {
	var in service.CompleteInput
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a material request in processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := a.session.Requests.Complete(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			return a.out.request(req)
		},
	}
	cmd.Flags().StringVar(&in.CompletionNote, "note", "", "completion note")
	return cmd
}

// parseMaterials reads id:quantity[:reason] lines
func parseMaterials(specs []string) ([]entity.MaterialLine, error) {
	lines := make([]entity.MaterialLine, 0, len(specs))
	for _, s := range specs {
		parts := strings.SplitN(s, ":", 3)
		if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("invalid material %q, want id:quantity[:reason]", s)
		}
		qty, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid quantity in %q: %w", s, err)
		}
		if qty <= 0 {
			return nil, errors.New("material quantity must be positive")
		}
		line := entity.MaterialLine{MaterialID: strings.TrimSpace(parts[0]), Quantity: qty}
		if len(parts) == 3 {
			line.Reason = strings.TrimSpace(parts[2])
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func parseAttachments(names []string) []entity.Attachment {
	if len(names) == 0 {
		return nil
	}
	out := make([]entity.Attachment, 0, len(names))
	for _, n := range names {
		out = append(out, entity.Attachment{FileName: n})
	}
	return out
}
