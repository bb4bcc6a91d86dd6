package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"liffsurvey/internal/config"
	"liffsurvey/internal/journal"
)

func fieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "List survey fields and validation rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			schema, err := cfg.Schema()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(schema.Fields())
			}
			titles := sectionTitles(cfg)
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.SetTitle(cfg.Survey.Title)
			tw.AppendHeader(table.Row{"Name", "Label", "Kind", "Section", "Required", "Options"})
			for _, f := range schema.Fields() {
				req := ""
				if schema.Required(f.Name) {
					req = "yes"
				}
				tw.AppendRow(table.Row{f.Name, f.Label, f.Kind, titles[f.Section], req, strings.Join(f.Options, ", ")})
			}
			tw.Render()
			rules := schema.Rules()
			if rules.PhoneField != "" && rules.PhonePattern != nil {
				fmt.Printf("phone: %s must match %s\n", rules.PhoneField, rules.PhonePattern)
			}
			if rules.MaxTextLength > 0 {
				fmt.Printf("free text: at most %d characters\n", rules.MaxTextLength)
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect survey config",
		Long:  "Config is liffsurvey.yml in the workspace: LIFF app, upstream script, proxy origins, survey fields and validation rules. Without a file the bundled bread survey is used.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config (file plus overrides)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.Marshal()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the bundled survey config to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.DefaultYAML), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Submission attempt journal"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var id string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent attempts, or one attempt with --id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), func(ctx context.Context, j *journal.Journal) error {
				if id != "" {
					a, err := j.Get(ctx, id)
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(a)
					}
					fmt.Printf("%s  %s  %s\n", a.ID, a.At.Format("2006-01-02 15:04:05"), a.State)
					if a.Message != "" {
						fmt.Println(a.Message)
					}
					if a.Diagnostics != "" {
						fmt.Println(a.Diagnostics)
					}
					return nil
				}
				items, err := j.Latest(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "At", "State", "Kind", "Status", "Submission", "Message"})
				for _, a := range items {
					status := ""
					if a.Status != 0 {
						status = fmt.Sprint(a.Status)
					}
					tw.AppendRow(table.Row{shortID(a.ID), a.At.Format("2006-01-02 15:04:05"), a.State, a.Kind, status, a.SubmissionID, a.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of attempts")
	cmd.Flags().StringVar(&id, "id", "", "attempt id or unique prefix")
	return cmd
}

// shortID is the table form of an attempt id; log tail --id accepts it back
// as a prefix.
func shortID(id string) string {
	const n = 8
	if len(id) <= n {
		return id
	}
	return id[:n]
}

func withJournal(ctx context.Context, fn func(context.Context, *journal.Journal) error) error {
	j, err := journal.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer j.Close()
	return fn(ctx, j)
}
