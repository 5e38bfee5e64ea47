package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"demandflow/internal/app"
	"demandflow/internal/config"
	"demandflow/internal/db"
	"demandflow/internal/domain"
	"demandflow/internal/engine"
	"demandflow/internal/interval"
	"demandflow/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "dfl",
	Short: "Demandflow CLI",
	Long: `Demandflow tracks demands through a fixed workflow and projects team capacity.
Core concepts:
- Workspace: your .demandflow directory with the database; tunables live in demandflow.yml.
- Demands: work requests that move intake -> qualification -> queued -> in_execution -> validation -> completed; archiving is a side exit with a mandatory reason.
- People and coordinations: who executes the work; areas are where requests come from.
- SLA rules: time budgets per category and complexity; breaching one at completion demands a justification.
- Projection: a FIFO simulation of each person's queue, one demand at a time.
- Allocation and heatmap: demanded load against capacity, by window or by week.
- Event log: diary of changes, view with 'dfl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DEMANDFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "local-user", "actor recorded on history entries")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

func registerCommands() {
	rootCmd.AddCommand(demandCmd())
	rootCmd.AddCommand(areaCmd())
	rootCmd.AddCommand(coordinationCmd())
	rootCmd.AddCommand(personCmd())
	rootCmd.AddCommand(categoryCmd())
	rootCmd.AddCommand(slaCmd())
	rootCmd.AddCommand(viewCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- demand ---

func demandCmd() *cobra.Command {
	d := &cobra.Command{Use: "demand", Short: "Manage demands"}
	d.AddCommand(demandListCmd())
	d.AddCommand(demandShowCmd())
	d.AddCommand(demandCreateCmd())
	d.AddCommand(demandUpdateCmd())
	d.AddCommand(demandDeleteCmd())
	d.AddCommand(demandStatusCmd())
	d.AddCommand(demandAdvanceCmd())
	d.AddCommand(demandRetreatCmd())
	d.AddCommand(demandArchiveCmd())
	d.AddCommand(demandRestoreCmd())
	d.AddCommand(demandPriorityCmd())
	d.AddCommand(demandSLACmd())
	return d
}

func demandListCmd() *cobra.Command {
	var status, personID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List demands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var items []domain.Demand
				for _, d := range a.Engine.Demands() {
					if status != "" && string(d.Status) != status {
						continue
					}
					if personID != "" && d.PersonID != personID {
						continue
					}
					items = append(items, d)
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Person", "Effort", "Priority", "Created"})
				for _, d := range items {
					prio := ""
					if d.IsPriority {
						prio = "*"
					}
					tw.AppendRow(table.Row{d.ID, d.Title, d.Status, d.PersonID, d.EffortHours, prio, d.CreatedAt.Format("2006-01-02")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&personID, "person", "", "assignee filter")
	return cmd
}

func demandShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a demand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Engine.Demand(args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func demandCreateCmd() *cobra.Command {
	var opts engine.CreateDemandOptions
	var typ, complexity, deadline string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create demand",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Type = domain.DemandType(typ)
			opts.Complexity = domain.Complexity(complexity)
			if deadline != "" {
				t, err := parseDay(deadline)
				if err != nil {
					return fmt.Errorf("invalid --deadline: %w", err)
				}
				opts.AgreedDeadline = &t
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Engine.CreateDemand(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.PersonID, "person", "", "assignee person id")
	cmd.Flags().StringVar(&opts.CoordinationID, "coordination", "", "coordination id")
	cmd.Flags().StringVar(&opts.RequesterName, "requester", "", "requester name")
	cmd.Flags().StringVar(&opts.RequesterAreaID, "requester-area", "", "requester area id")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category name")
	cmd.Flags().StringVar(&typ, "type", "task", "demand type (system, task)")
	cmd.Flags().StringVar(&complexity, "complexity", "medium", "complexity (low, medium, high)")
	cmd.Flags().Float64Var(&opts.EffortHours, "effort", 0, "estimated effort in hours")
	cmd.Flags().StringVar(&deadline, "deadline", "", "agreed deadline (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&opts.IsPriority, "priority", false, "mark as priority")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func demandUpdateCmd() *cobra.Command {
	var title, description, personID, coordinationID, requester, requesterArea, category, typ, complexity, deadline string
	var effort float64
	var clearDeadline bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update demand fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts engine.UpdateDemandOptions
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("person") {
				opts.PersonID = &personID
			}
			if cmd.Flags().Changed("coordination") {
				opts.CoordinationID = &coordinationID
			}
			if cmd.Flags().Changed("requester") {
				opts.RequesterName = &requester
			}
			if cmd.Flags().Changed("requester-area") {
				opts.RequesterAreaID = &requesterArea
			}
			if cmd.Flags().Changed("category") {
				opts.Category = &category
			}
			if cmd.Flags().Changed("type") {
				t := domain.DemandType(typ)
				opts.Type = &t
			}
			if cmd.Flags().Changed("complexity") {
				c := domain.Complexity(complexity)
				opts.Complexity = &c
			}
			if cmd.Flags().Changed("effort") {
				opts.EffortHours = &effort
			}
			if cmd.Flags().Changed("deadline") {
				t, err := parseDay(deadline)
				if err != nil {
					return fmt.Errorf("invalid --deadline: %w", err)
				}
				opts.AgreedDeadline = &t
			}
			opts.ClearDeadline = clearDeadline
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Engine.UpdateDemand(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&personID, "person", "", "assignee person id")
	cmd.Flags().StringVar(&coordinationID, "coordination", "", "coordination id")
	cmd.Flags().StringVar(&requester, "requester", "", "requester name")
	cmd.Flags().StringVar(&requesterArea, "requester-area", "", "requester area id")
	cmd.Flags().StringVar(&category, "category", "", "category name")
	cmd.Flags().StringVar(&typ, "type", "", "demand type")
	cmd.Flags().StringVar(&complexity, "complexity", "", "complexity")
	cmd.Flags().Float64Var(&effort, "effort", 0, "estimated effort in hours")
	cmd.Flags().StringVar(&deadline, "deadline", "", "agreed deadline")
	cmd.Flags().BoolVar(&clearDeadline, "clear-deadline", false, "remove the agreed deadline")
	return cmd
}

func demandDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete demand permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeleteDemand(ctx, args[0])
			})
		},
	}
	return cmd
}

func demandStatusCmd() *cobra.Command {
	var justification, summary, delay string
	cmd := &cobra.Command{
		Use:   "status <id> <target>",
		Short: "Transition demand status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Engine.ChangeStatus(ctx, args[0], domain.Status(args[1]), engine.StatusOptions{
					Justification:      justification,
					DeliverySummary:    summary,
					DelayJustification: delay,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&justification, "justification", "", "reason (required to archive)")
	cmd.Flags().StringVar(&summary, "summary", "", "delivery summary (required to complete)")
	cmd.Flags().StringVar(&delay, "delay-justification", "", "justification when the SLA is exceeded")
	return cmd
}

func demandAdvanceCmd() *cobra.Command {
	var summary, delay string
	cmd := &cobra.Command{
		Use:   "advance <id>",
		Short: "Step demand to the next lifecycle state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Engine.Advance(ctx, args[0], engine.StatusOptions{
					DeliverySummary:    summary,
					DelayJustification: delay,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&summary, "summary", "", "delivery summary (when completing)")
	cmd.Flags().StringVar(&delay, "delay-justification", "", "justification when the SLA is exceeded")
	return cmd
}

func demandRetreatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retreat <id>",
		Short: "Step demand to the previous lifecycle state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Engine.Retreat(ctx, args[0], engine.StatusOptions{})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func demandArchiveCmd() *cobra.Command {
	var justification string
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive demand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Engine.Archive(ctx, args[0], justification)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&justification, "justification", "", "reason for archiving")
	_ = cmd.MarkFlagRequired("justification")
	return cmd
}

func demandRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore archived demand to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Engine.Restore(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func demandPriorityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "priority <id>",
		Short: "Toggle demand priority flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Engine.TogglePriority(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func demandSLACmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sla <id>",
		Short: "Evaluate demand SLA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.EvaluateSLA(args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

// --- reference entities ---

func areaCmd() *cobra.Command {
	c := &cobra.Command{Use: "area", Short: "Manage requesting areas"}
	var name, description string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create area",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out, err := a.Engine.CreateArea(ctx, domain.Area{Name: name, Description: description})
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "name")
	create.Flags().StringVar(&description, "description", "", "description")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List areas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return printJSONOrTable(a.Engine.Snapshot().Areas)
			})
		},
	}

	var upName, upDescription string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out, err := a.Engine.UpdateArea(ctx, domain.Area{ID: args[0], Name: upName, Description: upDescription})
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	update.Flags().StringVar(&upName, "name", "", "name")
	update.Flags().StringVar(&upDescription, "description", "", "description")
	_ = update.MarkFlagRequired("name")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeleteArea(ctx, args[0])
			})
		},
	}
	c.AddCommand(create, list, update, del)
	return c
}

func coordinationCmd() *cobra.Command {
	c := &cobra.Command{Use: "coordination", Short: "Manage executing coordinations"}
	var name, description string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create coordination",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out, err := a.Engine.CreateCoordination(ctx, domain.Coordination{Name: name, Description: description})
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "name")
	create.Flags().StringVar(&description, "description", "", "description")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List coordinations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return printJSONOrTable(a.Engine.Snapshot().Coordinations)
			})
		},
	}

	var upName, upDescription string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update coordination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out, err := a.Engine.UpdateCoordination(ctx, domain.Coordination{ID: args[0], Name: upName, Description: upDescription})
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	update.Flags().StringVar(&upName, "name", "", "name")
	update.Flags().StringVar(&upDescription, "description", "", "description")
	_ = update.MarkFlagRequired("name")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete coordination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeleteCoordination(ctx, args[0])
			})
		},
	}
	c.AddCommand(create, list, update, del)
	return c
}

func personCmd() *cobra.Command {
	c := &cobra.Command{Use: "person", Short: "Manage people"}
	var name, role, coordinationID string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create person",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out, err := a.Engine.CreatePerson(ctx, domain.Person{Name: name, Role: role, CoordinationID: coordinationID})
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "name")
	create.Flags().StringVar(&role, "role", "", "role")
	create.Flags().StringVar(&coordinationID, "coordination", "", "coordination id")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("coordination")

	list := &cobra.Command{
		Use:   "list",
		Short: "List people",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				snap := a.Engine.Snapshot()
				if viper.GetBool("json") {
					return printJSON(snap.People)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Coordination"})
				for _, p := range snap.People {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Role, p.CoordinationID})
				}
				tw.Render()
				return nil
			})
		},
	}

	var upName, upRole, upCoordination string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out, err := a.Engine.UpdatePerson(ctx, domain.Person{ID: args[0], Name: upName, Role: upRole, CoordinationID: upCoordination})
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	update.Flags().StringVar(&upName, "name", "", "name")
	update.Flags().StringVar(&upRole, "role", "", "role")
	update.Flags().StringVar(&upCoordination, "coordination", "", "coordination id")
	_ = update.MarkFlagRequired("name")
	_ = update.MarkFlagRequired("coordination")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeletePerson(ctx, args[0])
			})
		},
	}
	c.AddCommand(create, list, update, del)
	return c
}

func categoryCmd() *cobra.Command {
	c := &cobra.Command{Use: "category", Short: "Manage demand categories"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create category",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out, err := a.Engine.CreateCategory(ctx, domain.Category{Name: name})
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "name")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return printJSONOrTable(a.Engine.Snapshot().Categories)
			})
		},
	}

	var upName string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out, err := a.Engine.UpdateCategory(ctx, domain.Category{ID: args[0], Name: upName})
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	update.Flags().StringVar(&upName, "name", "", "name")
	_ = update.MarkFlagRequired("name")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeleteCategory(ctx, args[0])
			})
		},
	}
	c.AddCommand(create, list, update, del)
	return c
}

func slaCmd() *cobra.Command {
	c := &cobra.Command{Use: "sla", Short: "Manage SLA rules"}
	var categoryID, complexity string
	var target float64
	create := &cobra.Command{
		Use:   "create",
		Short: "Create SLA rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out, err := a.Engine.CreateSLAConfig(ctx, domain.SLAConfig{
					CategoryID:  categoryID,
					Complexity:  domain.Complexity(complexity),
					TargetHours: target,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	create.Flags().StringVar(&categoryID, "category", "", "category id")
	create.Flags().StringVar(&complexity, "complexity", "", "complexity (low, medium, high)")
	create.Flags().Float64Var(&target, "target", 0, "target hours")
	_ = create.MarkFlagRequired("category")
	_ = create.MarkFlagRequired("complexity")
	_ = create.MarkFlagRequired("target")

	list := &cobra.Command{
		Use:   "list",
		Short: "List SLA rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return printJSONOrTable(a.Engine.Snapshot().SLAs)
			})
		},
	}

	var upCategoryID, upComplexity string
	var upTarget float64
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update SLA rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out, err := a.Engine.UpdateSLAConfig(ctx, domain.SLAConfig{
					ID:          args[0],
					CategoryID:  upCategoryID,
					Complexity:  domain.Complexity(upComplexity),
					TargetHours: upTarget,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	update.Flags().StringVar(&upCategoryID, "category", "", "category id")
	update.Flags().StringVar(&upComplexity, "complexity", "", "complexity")
	update.Flags().Float64Var(&upTarget, "target", 0, "target hours")
	_ = update.MarkFlagRequired("category")
	_ = update.MarkFlagRequired("complexity")
	_ = update.MarkFlagRequired("target")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete SLA rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeleteSLAConfig(ctx, args[0])
			})
		},
	}
	c.AddCommand(create, list, update, del)
	return c
}

// --- views ---

func viewCmd() *cobra.Command {
	v := &cobra.Command{Use: "view", Short: "Derived views"}
	v.AddCommand(viewProjectionCmd())
	v.AddCommand(viewAllocationCmd())
	v.AddCommand(viewHeatmapCmd())
	v.AddCommand(viewDelayedCmd())
	v.AddCommand(viewMetricsCmd())
	return v
}

func viewProjectionCmd() *cobra.Command {
	var personID string
	cmd := &cobra.Command{
		Use:   "projection",
		Short: "FIFO schedule projection per assignee",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rows := a.Engine.Projection()
				if personID != "" {
					filtered := rows[:0]
					for _, row := range rows {
						if row.PersonID == personID {
							filtered = append(filtered, row)
						}
					}
					rows = filtered
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Person", "Demand", "Status", "Start", "End", "Projected"})
				for _, row := range rows {
					for _, s := range row.Slots {
						proj := ""
						if s.Projected {
							proj = "yes"
						}
						tw.AppendRow(table.Row{
							row.PersonID, s.Demand.Title, s.Demand.Status,
							s.Start.Format("2006-01-02"), s.End.Format("2006-01-02"), proj,
						})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&personID, "person", "", "only this assignee")
	return cmd
}

func viewAllocationCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "allocation",
		Short: "Capacity allocation over a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			window, err := parseWindowFlags(from, to)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rep := a.Engine.Allocation(window)
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Person", "Coordination", "Capacity", "Load", "Available", "Util%", "Status"})
				for _, p := range rep.People {
					tw.AppendRow(table.Row{p.Name, p.CoordinationName, p.CapacityHours, p.LoadHours, p.AvailableHours, p.Utilization, p.Status})
				}
				tw.Render()
				tc := table.NewWriter()
				tc.SetOutputMirror(os.Stdout)
				tc.AppendHeader(table.Row{"Coordination", "Capacity", "Load", "Util%", "Status"})
				for _, c := range rep.Coordinations {
					tc.AppendRow(table.Row{c.Name, c.CapacityHours, c.LoadHours, c.Utilization, c.Status})
				}
				tc.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "window start (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "window end")
	return cmd
}

func viewHeatmapCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Weekly load heatmap",
		RunE: func(cmd *cobra.Command, args []string) error {
			span, err := parseWindowFlags(from, to)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				hm := a.Engine.Heatmap(span)
				if viper.GetBool("json") {
					return printJSON(hm)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				header := table.Row{"Row"}
				for _, w := range hm.Weeks {
					header = append(header, w.Label)
				}
				tw.AppendHeader(header)
				for _, c := range hm.Coordinations {
					row := table.Row{c.Name}
					for i := range hm.Weeks {
						row = append(row, fmt.Sprintf("%.0f (%s)", c.Loads[i], c.Bands[i]))
					}
					tw.AppendRow(row)
					for _, p := range c.People {
						prow := table.Row{"  " + p.Name}
						for i := range hm.Weeks {
							prow = append(prow, fmt.Sprintf("%.0f (%s)", p.Loads[i], p.Bands[i]))
						}
						tw.AppendRow(prow)
					}
				}
				total := table.Row{"TOTAL"}
				for i := range hm.Weeks {
					total = append(total, fmt.Sprintf("%.0f (%s)", hm.Totals[i], hm.TotalBands[i]))
				}
				tw.AppendFooter(total)
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "span start (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "span end")
	return cmd
}

func viewDelayedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delayed",
		Short: "Breached and at-risk demands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items := a.Engine.Delayed()
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Reason", "Actual", "Allowed"})
				for _, it := range items {
					tw.AppendRow(table.Row{
						it.Demand.ID, it.Demand.Title, it.Demand.Status, it.Reason,
						fmt.Sprintf("%.0fh", it.Result.ActualHours), fmt.Sprintf("%.0fh", it.Result.AllowedHours),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func viewMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Flow metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return printJSONOrTable(a.Engine.ComputeMetrics())
			})
		},
	}
	return cmd
}

// --- log ---

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: demand changes, reference edits, deletions.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Engine.Events(ctx, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is demandflow.yml: capacity tunables and the at-risk buffer.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default demandflow.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
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
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving demandflow API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	actor := viper.GetString("actor")
	a.Engine.Actor = actor
	a.Store.ActorID = actor
	return fn(ctx, a)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func parseWindowFlags(from, to string) (interval.Interval, error) {
	if from == "" && to == "" {
		return interval.Interval{}, nil
	}
	start, err := parseDay(from)
	if err != nil {
		return interval.Interval{}, fmt.Errorf("invalid --from: %w", err)
	}
	end, err := parseDay(to)
	if err != nil {
		return interval.Interval{}, fmt.Errorf("invalid --to: %w", err)
	}
	if !end.After(start) {
		return interval.Interval{}, fmt.Errorf("--to must be after --from")
	}
	return interval.Interval{Start: start, End: end}, nil
}
