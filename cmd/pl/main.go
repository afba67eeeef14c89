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

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/ics"
	"planline/internal/interval"
	"planline/internal/migrate"
	"planline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pl",
	Short: "Planline CLI",
	Long: `Planline derives daily placements for work items around fixed commitments.
Core concepts:
- Workspace: your .planline directory with the database; planline.yml next to it holds config.
- Owner: one person's calendar. Planners may drag items anywhere; assistants only earlier.
- Work item: a movable task with an estimate and optionally a due date. Remaining
  effort shrinks as hours are logged.
- Commitment: an immovable calendar event; the scheduler plans around it.
- Placement: the (date, start) slot an item occupies inside the 09:00-18:00 window.
  The engine packs items backward from the due date and may push smaller items to
  earlier days when a day fills up.
- Pin: a manually dragged item stays where the user put it.
- Event log: diary of changes, view with 'pl log tail'.`,
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
	viper.SetEnvPrefix("PLANLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(ownerCmd())
	rootCmd.AddCommand(itemCmd())
	rootCmd.AddCommand(commitmentCmd())
	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func ownerCmd() *cobra.Command {
	owner := &cobra.Command{Use: "owner", Short: "Manage calendar owners"}
	owner.AddCommand(ownerAddCmd())
	owner.AddCommand(ownerListCmd())
	return owner
}

func ownerAddCmd() *cobra.Command {
	var id, name, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.CreateOwner(ctx, id, name, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "owner id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "planner", "role (planner|assistant)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func ownerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List owners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				owners, err := e.Repo.ListOwners(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(owners)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role"})
				for _, o := range owners {
					tw.AppendRow(table.Row{o.ID, o.Name, o.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func itemCmd() *cobra.Command {
	item := &cobra.Command{Use: "item", Short: "Manage work items"}
	item.AddCommand(itemAddCmd())
	item.AddCommand(itemListCmd())
	item.AddCommand(itemShowCmd())
	item.AddCommand(itemLogCmd())
	item.AddCommand(itemDueCmd())
	item.AddCommand(itemPlaceCmd())
	item.AddCommand(itemMoveCmd())
	return item
}

func itemAddCmd() *cobra.Command {
	var owner, title, due, date, start string
	var hours float64
	var pin bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a work item; placed immediately when it has a due date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.ItemCreateOptions{
					OwnerID:        owner,
					Title:          title,
					EstimatedHours: hours,
					Pinned:         pin,
					ActorID:        viper.GetString("actor-id"),
				}
				if due != "" {
					opts.DueDate = &due
				}
				if date != "" {
					opts.PlacementDate = &date
				}
				if start != "" {
					opts.PlacementStart = &start
				}
				item, placement, err := e.CreateItem(ctx, opts)
				if err != nil {
					return err
				}
				if !viper.GetBool("json") {
					reportPlacement(placement)
				}
				return printJSONOrTable(item)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&hours, "hours", 0, "estimated hours")
	cmd.Flags().BoolVar(&pin, "pin", false, "pin the supplied placement")
	cmd.Flags().StringVar(&date, "date", "", "placement date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&start, "start", "", "placement start (HH:MM)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("hours")
	return cmd
}

func itemListCmd() *cobra.Command {
	var owner, date string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListWorkItems(ctx, owner, date)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Due", "Est", "Logged", "Placed", "Pin"})
				for _, w := range items {
					tw.AppendRow(table.Row{
						w.ID, w.Title, strOrDash(w.DueDate),
						fmt.Sprintf("%.1fh", w.EstimatedHours),
						fmt.Sprintf("%.1fh", w.LoggedHours),
						placementCell(w), pinCell(w.Pinned),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner filter")
	cmd.Flags().StringVar(&date, "date", "", "placement date filter")
	return cmd
}

func itemShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show a work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.Repo.GetWorkItem(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
}

func itemLogCmd() *cobra.Command {
	var hours float64
	cmd := &cobra.Command{
		Use:   "log <item-id>",
		Short: "Log effort; the item may move earlier as its remaining time shrinks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				item, placement, err := e.LogEffort(ctx, args[0], hours, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if !viper.GetBool("json") {
					reportPlacement(placement)
				}
				return printJSONOrTable(item)
			})
		},
	}
	cmd.Flags().Float64Var(&hours, "hours", 0, "hours worked")
	_ = cmd.MarkFlagRequired("hours")
	return cmd
}

func itemDueCmd() *cobra.Command {
	var due string
	cmd := &cobra.Command{
		Use:   "due <item-id>",
		Short: "Set due date and re-derive the placement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var duePtr *string
				if due != "" {
					duePtr = &due
				}
				item, placement, err := e.SetDueDate(ctx, args[0], duePtr, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if !viper.GetBool("json") {
					reportPlacement(placement)
				}
				return printJSONOrTable(item)
			})
		},
	}
	cmd.Flags().StringVar(&due, "date", "", "due date (YYYY-MM-DD); empty clears it")
	return cmd
}

func itemPlaceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "place <item-id>",
		Short: "Derive a placement for the item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				result, err := e.AutoPlace(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(result)
			})
		},
	}
}

func itemMoveCmd() *cobra.Command {
	var date, start string
	cmd := &cobra.Command{
		Use:   "move <item-id>",
		Short: "Drag an item to a new slot; snaps to the nearest free slot on that day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actorID := viper.GetString("actor-id")
				canMoveForward, err := e.ResolveMoveCapability(ctx, actorID)
				if err != nil {
					return err
				}
				outcome, err := e.ValidateMove(ctx, canMoveForward, args[0], date, start, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(outcome)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "target date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&start, "start", "", "target start (HH:MM)")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func commitmentCmd() *cobra.Command {
	c := &cobra.Command{Use: "commitment", Short: "Manage fixed commitments"}
	c.AddCommand(commitmentAddCmd())
	c.AddCommand(commitmentListCmd())
	c.AddCommand(commitmentUpdateCmd())
	c.AddCommand(commitmentRmCmd())
	c.AddCommand(commitmentImportCmd())
	return c
}

func commitmentAddCmd() *cobra.Command {
	var owner, title, date, start string
	var minutes int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a commitment; overlapping items are re-placed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, moved, err := e.CreateCommitment(ctx, engine.CommitmentCreateOptions{
					OwnerID:         owner,
					Title:           title,
					Date:            date,
					Start:           start,
					DurationMinutes: minutes,
					ActorID:         viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if !viper.GetBool("json") {
					reportMoved(moved)
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&start, "start", "", "start (HH:MM)")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "duration in minutes")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("minutes")
	return cmd
}

func commitmentListCmd() *cobra.Command {
	var owner, date string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List commitments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCommitments(ctx, owner, date)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Date", "Start", "Minutes"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Title, c.Date, c.Start, c.DurationMinutes})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner filter")
	cmd.Flags().StringVar(&date, "date", "", "date filter")
	return cmd
}

func commitmentUpdateCmd() *cobra.Command {
	var date, start string
	var minutes int
	cmd := &cobra.Command{
		Use:   "update <commitment-id>",
		Short: "Move or resize a commitment; overlapping items are re-placed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, moved, err := e.UpdateCommitment(ctx, args[0], date, start, minutes, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if !viper.GetBool("json") {
					reportMoved(moved)
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "new date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&start, "start", "", "new start (HH:MM)")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "new duration in minutes")
	return cmd
}

func commitmentRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <commitment-id>",
		Short: "Delete a commitment; freed space is not backfilled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteCommitment(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func commitmentImportCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "import <file.ics>",
		Short: "Import timed events from an ICS calendar as commitments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				created, movedIDs, err := ics.Import(ctx, e, f, owner, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"created":        created,
					"moved_item_ids": movedIDs,
				})
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func slotsCmd() *cobra.Command {
	var owner, date string
	var minMinutes int
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show free slots on one owner's day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				slots, err := e.FindFreeSlots(ctx, owner, date, minMinutes)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(slots)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Start", "End", "Minutes"})
				for _, s := range slots {
					tw.AppendRow(table.Row{interval.FormatClock(s.Start), interval.FormatClock(s.End), s.Duration()})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&minMinutes, "min", config.DefaultMinPlaceMinutes, "minimum slot size in minutes")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(c)
			}
			out, err := c.ToYAML()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	return cfg
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: placements, moves, commitments, effort.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var owner string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.ListEvents(ctx, n, owner)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&owner, "owner", "", "owner filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	ak.AddCommand(apikeyCreateCmd())
	ak.AddCommand(apikeyListCmd())
	ak.AddCommand(apikeyRmCmd())
	return ak
}

func apikeyCreateCmd() *cobra.Command {
	var actor, name, key string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the plaintext is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plaintext := key
				if plaintext == "" {
					plaintext = newRandomKey()
				}
				created, err := e.CreateAPIKey(ctx, actor, name, plaintext)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":       created.ID,
					"actor_id": created.ActorID,
					"name":     created.Name,
					"key":      plaintext,
				})
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "label")
	cmd.Flags().StringVar(&key, "key", "", "explicit key value (random when omitted)")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor filter")
	return cmd
}

func apikeyRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			e.Log = newLogger()
			jwtSecret := cfg.Auth.JWTSecret
			if s := os.Getenv("PLANLINE_JWT_SECRET"); s != "" {
				jwtSecret = s
			}
			if jwtSecret == "" {
				return fmt.Errorf("set auth.jwt_secret in planline.yml or PLANLINE_JWT_SECRET for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:              jwtSecret,
					AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
					Log:                    e.Log,
				},
				ShutdownCtx: cmd.Context(),
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Planline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8484", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	e.Log = newLogger()
	return fn(ctx, e)
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
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

func reportPlacement(p engine.PlacementResult) {
	switch {
	case p.Placed:
		fmt.Printf("placed on %s at %s\n", p.Date, p.Start)
	case p.Reason != "":
		fmt.Printf("not placed: %s\n", p.Reason)
	}
	reportMoved(p.Moved)
}

func reportMoved(moved []domain.MovedItem) {
	for _, m := range moved {
		fmt.Printf("moved %s to %s %s\n", m.ItemID, m.NewDate, m.NewStart)
	}
}

func strOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func placementCell(w domain.WorkItem) string {
	if !w.Placed() {
		return "-"
	}
	return *w.PlacementDate + " " + *w.PlacementStart
}

func pinCell(pinned bool) string {
	if pinned {
		return "pin"
	}
	return ""
}

func newRandomKey() string {
	return "plk_" + uuid.NewString()
}
