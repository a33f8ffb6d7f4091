package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"shift_sms_gateway/internal/app"
	"shift_sms_gateway/internal/bootstrap"
	"shift_sms_gateway/internal/domain/employee"
	"shift_sms_gateway/internal/domain/sms"
	"shift_sms_gateway/internal/domain/template"
	"shift_sms_gateway/internal/infra/config"
	idb "shift_sms_gateway/internal/infra/database"
	"shift_sms_gateway/internal/infra/logger"

	"github.com/spf13/cobra"
)

type cli struct {
	app *bootstrap.App
	out io.Writer
}

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}
	root := &cobra.Command{
		Use:           "smsctl",
		Short:         "Operator tools for the shift SMS gateway",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open(cmd)
		},
	}
	root.AddCommand(
		c.sendOneCmd(),
		c.sendBulkCmd(),
		c.testCredentialsCmd(),
		c.reprocessRemindersCmd(),
		c.seedTemplatesCmd(),
		c.previewTemplateCmd(),
		c.addEmployeeCmd(),
		c.auditCountCmd(),
	)
	return root, c
}

func (c *cli) open(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	logger.Init(cfg)
	// Diagnostics go to stderr so command output stays parseable.
	logger.Log.SetOutput(cmd.ErrOrStderr())

	a, err := bootstrap.New(ctx, cfg, nil, logger.Log.WithField("app", "smsctl"))
	if err != nil {
		return err
	}
	c.app = a
	c.out = cmd.OutOrStdout()
	if err := a.ActivateProvider(ctx); err != nil {
		logger.Log.WithError(err).Warn("SMS provider not activated")
	}
	return nil
}

func (c *cli) close() {
	if c.app != nil {
		c.app.Close(context.Background())
		c.app = nil
	}
}

func (c *cli) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *cli) sendOneCmd() *cobra.Command {
	var employeeID int64
	var text string
	cmd := &cobra.Command{
		Use:   "send-one",
		Short: "Send a message to one employee",
		RunE: func(cmd *cobra.Command, _ []string) error {
			msg, err := c.app.Notifications.SendOne(cmd.Context(), employeeID, text)
			if err != nil {
				return err
			}
			c.printf("message %d: %s\n", msg.ID, msg.Status)
			if msg.ErrorMessage.Valid {
				c.printf("error %s: %s\n", msg.ErrorCode.String, msg.ErrorMessage.String)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&employeeID, "employee", 0, "employee id")
	cmd.Flags().StringVar(&text, "text", "", "message text")
	_ = cmd.MarkFlagRequired("employee")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func (c *cli) sendBulkCmd() *cobra.Command {
	var ids []int64
	var text string
	cmd := &cobra.Command{
		Use:   "send-bulk",
		Short: "Send a message to several employees, or everyone opted in when --employees is omitted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			summary, err := c.app.Notifications.SendBulk(cmd.Context(), ids, text)
			c.printf("sent %d, failed %d\n", summary.Sent, summary.Failed)
			return err
		},
	}
	cmd.Flags().Int64SliceVar(&ids, "employees", nil, "comma separated employee ids")
	cmd.Flags().StringVar(&text, "text", "", "message text")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func (c *cli) testCredentialsCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "test-credentials",
		Short: "Send a test SMS through the active provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result := c.app.Notifications.TestCredentials(cmd.Context(), to)
			if !result.Success {
				return fmt.Errorf("test sms failed (%s): %s", result.ErrorCode, result.ErrorMessage)
			}
			c.printf("sent via %s, provider id %s\n", c.app.Gateway.ProviderType(), result.ProviderMessageID)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "destination phone number")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (c *cli) reprocessRemindersCmd() *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "reprocess-reminders",
		Short: "Send reminders missing for assigned shifts starting within the window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			summary, err := c.app.Notifications.ReprocessReminders(cmd.Context(), window)
			if err != nil {
				return err
			}
			c.printf("sent %d, failed %d\n", summary.Sent, summary.Failed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "look-ahead window")
	return cmd
}

func (c *cli) seedTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-templates",
		Short: "Create the default system template for every category without one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := idb.SeedDefaultTemplates(cmd.Context(), c.app.Templates)
			if err != nil {
				return err
			}
			c.printf("seeded %d templates\n", n)
			return nil
		},
	}
}

func (c *cli) previewTemplateCmd() *cobra.Command {
	var category, content string
	cmd := &cobra.Command{
		Use:   "preview-template",
		Short: "Render template content with sample data and validate it",
		RunE: func(_ *cobra.Command, _ []string) error {
			rendered, result := c.app.TemplateService.PreviewTemplate(content, template.Category(category))
			c.printf("%s\n", rendered)
			for _, w := range result.Warnings {
				c.printf("warning: %s\n", w)
			}
			if !result.Valid {
				return errors.New(strings.Join(result.Errors, "; "))
			}
			c.printf("variables: %s\n", strings.Join(app.AvailableVariables(template.Category(category)), ", "))
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", string(template.CategoryGeneral), "template category")
	cmd.Flags().StringVar(&content, "content", "", "template content")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func (c *cli) addEmployeeCmd() *cobra.Command {
	var firstName, lastName, phone, position string
	var areas []int64
	var optOut bool
	cmd := &cobra.Command{
		Use:   "add-employee",
		Short: "Register an employee who can receive shift SMS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			normalized := sms.NormalizePhone(phone)
			if !normalized.Valid {
				return fmt.Errorf("invalid phone number %q: %s", phone, normalized.Error)
			}
			e := &employee.Employee{
				FirstName: firstName,
				LastName:  sql.NullString{String: lastName, Valid: lastName != ""},
				Phone:     normalized.Formatted,
				Position:  position,
				AreaIDs:   areas,
				IsActive:  true,
				SmsOptIn:  !optOut,
			}
			if err := c.app.Employees.Create(cmd.Context(), e); err != nil {
				return err
			}
			c.printf("employee %s: %s\n", strconv.FormatInt(e.ID, 10), e.Phone)
			return nil
		},
	}
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&position, "position", "", "position, matched against shift positions")
	cmd.Flags().Int64SliceVar(&areas, "areas", nil, "comma separated area ids; empty means every area")
	cmd.Flags().BoolVar(&optOut, "opted-out", false, "register without SMS consent")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func (c *cli) auditCountCmd() *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:   "audit-count",
		Short: "Count audit log entries for an action",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := c.app.AuditEntries.CountByAction(cmd.Context(), action)
			if err != nil {
				return err
			}
			c.printf("%d\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "audit action, e.g. sms_sent")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}
