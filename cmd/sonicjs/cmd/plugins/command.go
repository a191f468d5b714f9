// Package plugins provides commands that manage plugin state offline,
// against the same plugin store the admin server uses.
package plugins

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lane711/sonicjs/internal/appcontext"
	"github.com/lane711/sonicjs/internal/cmd/output"
	"github.com/lane711/sonicjs/internal/hooks"
	"github.com/lane711/sonicjs/internal/plugins"
	"github.com/lane711/sonicjs/pkg/errors"
)

// NewCommand creates the plugins command and its subcommands.
func NewCommand(app appcontext.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "plugins",
		Aliases: []string{"plugin"},
		GroupID: "management",
		Short:   "Manage installed plugins",
		Long: `Manage plugin state stored in the plugins file.

Changes made here are picked up by the admin server on its next start.`,
	}

	cmd.AddCommand(newListCommand(app))
	cmd.AddCommand(newTransitionCommand(app, "activate", "Activate a plugin",
		func(ctx context.Context, m *plugins.Manager, id string) error {
			_, err := m.Activate(ctx, id)
			return err
		}))
	cmd.AddCommand(newTransitionCommand(app, "deactivate", "Deactivate a plugin",
		func(ctx context.Context, m *plugins.Manager, id string) error {
			_, err := m.Deactivate(ctx, id)
			return err
		}))
	cmd.AddCommand(newTransitionCommand(app, "uninstall", "Uninstall a plugin",
		func(ctx context.Context, m *plugins.Manager, id string) error {
			return m.Uninstall(ctx, id)
		}))

	return cmd
}

// openManager loads plugin state and makes sure the core plugins exist.
func openManager(ctx context.Context, app appcontext.Interface) (*plugins.Manager, error) {
	m := plugins.NewManager(hooks.New(app.Logger()),
		plugins.WithStore(app.PluginStore()),
		plugins.WithLogger(app.Logger()),
	)
	if err := m.Load(ctx); err != nil {
		return nil, err
	}
	if err := m.EnsureCorePlugins(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func newListCommand(app appcontext.Interface) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List plugins",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, _ := cmd.Flags().GetString("status")
			category, _ := cmd.Flags().GetString("category")
			all, _ := cmd.Flags().GetBool("all")

			m, err := openManager(cmd.Context(), app)
			if err != nil {
				return err
			}
			list := m.List(plugins.ListFilter{
				Status:             plugins.Status(status),
				Category:           category,
				IncludeUninstalled: all,
			})

			format, err := output.ParseFormat(app.OutputFormat())
			if err != nil {
				return err
			}
			format = output.DetectFormat(string(format))

			var data any = list
			if format == output.FormatTable {
				data = pluginTable(list)
			}
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), data)
		},
	}

	cmd.Flags().String("status", "", "Only plugins with this status")
	cmd.Flags().String("category", "", "Only plugins in this category")
	cmd.Flags().Bool("all", false, "Include uninstalled plugins")
	return cmd
}

func pluginTable(list []plugins.Plugin) output.Data {
	data := output.Data{
		Headers: []string{"ID", "Name", "Version", "Category", "Status", "Core"},
		Rows:    make([][]string, 0, len(list)),
	}
	for _, p := range list {
		core := ""
		if p.IsCore {
			core = "yes"
		}
		data.Rows = append(data.Rows, []string{
			p.ID, p.DisplayName, p.Version, output.Title(p.Category), string(p.Status), core,
		})
	}
	return data
}

func newTransitionCommand(app appcontext.Interface, verb, short string,
	apply func(context.Context, *plugins.Manager, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <plugin-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])

			m, err := openManager(cmd.Context(), app)
			if err != nil {
				return err
			}
			if err := apply(cmd.Context(), m, id); err != nil {
				return withHint(err)
			}

			p, err := m.Get(id)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", p.ID, p.Status)
			return err
		},
	}
}

// withHint adds the next step to lifecycle rule violations.
func withHint(err error) error {
	var hint string
	switch {
	case errors.IsRule(err, errors.RuleCorePlugin):
		hint = "core plugins are always active"
	case errors.IsRule(err, errors.RuleDependency):
		hint = "activate its dependencies first"
	case errors.IsRule(err, errors.RuleDependents):
		hint = "deactivate the plugins that depend on it first"
	default:
		return err
	}
	return fmt.Errorf("%w (hint: %s)", err, hint)
}
