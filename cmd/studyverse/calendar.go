package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"studyverse/internal/ics"
	appLog "studyverse/internal/log"
	"studyverse/internal/model"
	"studyverse/internal/recurrence"
)

var (
	expandStart  string
	expandEnd    string
	expandJSON   bool
	exportOut    string
	importParent string
)

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Print the calendar events of stored goals in a date range",
	Example: `  studyverse expand --start 2024-08-01 --end 2024-08-31
  studyverse expand --start 2024-08-01 --json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		loc := conf.Location()

		start, err := model.ParseDate(expandStart, loc)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		end := model.AddDays(start, 6)
		if expandEnd != "" {
			if end, err = model.ParseDate(expandEnd, loc); err != nil {
				return fmt.Errorf("--end: %w", err)
			}
		}

		st, err := openStore(ctx, conf)
		if err != nil {
			return err
		}
		defer st.Close()
		goals, err := st.ListGoals(ctx)
		if err != nil {
			return err
		}

		res, err := recurrence.ExpandWithConfig(recurrence.Flatten(goals), recurrence.ExpandConfig{
			Location:              loc,
			WindowStart:           start,
			WindowEnd:             end,
			MaxOccurrencesPerGoal: conf.Calendar.MaxOccurrences,
			MonthEnd:              recurrence.ParseMonthEndPolicy(conf.Calendar.MonthEnd),
			Horizon:               conf.Calendar.Horizon(time.Now(), loc),
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if expandJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res.Events)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DATE\tTIME\tGOAL\tID")
		for _, ev := range res.Events {
			when := ev.StartTime
			if when == "" {
				when = "all-day"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ev.InstanceDate, when, ev.Text, ev.ID)
		}
		return tw.Flush()
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all stored goals as an iCalendar file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx, conf)
		if err != nil {
			return err
		}
		defer st.Close()

		goals, err := st.ListGoals(ctx)
		if err != nil {
			return err
		}
		body, err := ics.Export(goals, ics.ExportOptions{Location: conf.Location()})
		if err != nil {
			return err
		}
		if exportOut == "" || exportOut == "-" {
			_, err = cmd.OutOrStdout().Write(body)
			return err
		}
		if err := os.WriteFile(exportOut, body, 0o644); err != nil {
			return err
		}
		appLog.Info("calendar exported", "path", exportOut, "bytes", len(body))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.ics>",
	Short: "Import events from an iCalendar file as editable goals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		body, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		goals, err := ics.Import(body, ics.ConvertConfig{
			Location:   conf.Location(),
			RangeStart: time.Now().AddDate(-1, 0, 0),
			RangeEnd:   time.Now().AddDate(1, 0, 0),
		})
		if err != nil {
			return err
		}

		st, err := openStore(ctx, conf)
		if err != nil {
			return err
		}
		defer st.Close()

		imported := 0
		for _, g := range goals {
			if _, err := st.CreateGoal(ctx, importParent, g); err != nil {
				appLog.Error("import: goal skipped", err, "goal_id", g.ID)
				continue
			}
			imported++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d goals from %s\n", imported, len(goals), args[0])
		return nil
	},
}

func init() {
	expandCmd.Flags().StringVar(&expandStart, "start", time.Now().Format(model.DateLayout), "first day (yyyy-MM-dd)")
	expandCmd.Flags().StringVar(&expandEnd, "end", "", "last day (yyyy-MM-dd); defaults to start + 6 days")
	expandCmd.Flags().BoolVar(&expandJSON, "json", false, "print events as JSON")

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "-", "output file, - for stdout")

	importCmd.Flags().StringVar(&importParent, "parent", "", "insert imported goals under this goal id")
}
