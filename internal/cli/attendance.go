package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"attendo/internal/attendance"
	"attendo/internal/auth"
	"attendo/internal/geo"
)

func newMarkCmd(load loader) *cobra.Command {
	var lat, lon float64
	var note string
	cmd := &cobra.Command{
		Use:       "mark <check-in|check-out>",
		Short:     "Record a check-in or check-out at the given position",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(attendance.CheckIn), string(attendance.CheckOut)},
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := attendance.ParseType(args[0])
			if err != nil {
				return err
			}
			env, err := load(cmd)
			if err != nil {
				return err
			}
			locator := geo.Unavailable
			if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
				locator = geo.Reported(geo.Point{Latitude: lat, Longitude: lon}, time.Time{})
			}
			rec, err := env.Service.Mark(cmd.Context(), env.Session, locator, typ, note)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s recorded at %s (%s)\n",
				rec.Type, rec.Timestamp.In(env.Service.Location()).Format(time.DateTime), rec.Location.Address)
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in decimal degrees")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude in decimal degrees")
	cmd.Flags().StringVar(&note, "note", "", "free-form note")
	return cmd
}

func newRecordsCmd(load loader) *cobra.Command {
	return listCmd(load, "records", "List attendance records visible to the signed-in identity",
		func(cmd *cobra.Command, env *Env, ident auth.Identity) ([]attendance.Record, error) {
			return env.Service.RecordsFor(cmd.Context(), ident)
		})
}

func newTodayCmd(load loader) *cobra.Command {
	return listCmd(load, "today", "List today's attendance records",
		func(cmd *cobra.Command, env *Env, ident auth.Identity) ([]attendance.Record, error) {
			return env.Service.TodayRecords(cmd.Context(), ident)
		})
}

type recordQuery func(cmd *cobra.Command, env *Env, ident auth.Identity) ([]attendance.Record, error)

func listCmd(load loader, use, short string, query recordQuery) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := load(cmd)
			if err != nil {
				return err
			}
			ident, ok := env.Session.CurrentUser()
			if !ok {
				return errNotSignedIn
			}
			records, err := query(cmd, env, ident)
			if err != nil {
				return err
			}
			if asJSON {
				if records == nil {
					records = []attendance.Record{}
				}
				return writeJSON(cmd.OutOrStdout(), records)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no records")
				return nil
			}
			return renderTable(cmd.OutOrStdout(),
				[]string{"Time", "Type", "User", "Location", "Notes"},
				recordRows(records, env.Service.Location()))
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func recordRows(records []attendance.Record, loc *time.Location) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		where := ""
		if r.Location != nil {
			where = r.Location.Address
		}
		rows = append(rows, []string{
			r.Timestamp.In(loc).Format(time.DateTime),
			string(r.Type),
			r.UserID,
			where,
			r.Notes,
		})
	}
	return rows
}

func newStatsCmd(load loader) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show attendance statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := load(cmd)
			if err != nil {
				return err
			}
			ident, ok := env.Session.CurrentUser()
			if !ok {
				return errNotSignedIn
			}
			stats, err := env.Service.Stats(cmd.Context(), ident)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			return renderTable(cmd.OutOrStdout(),
				[]string{"Total Days", "Attended", "Percentage", "Streak"},
				[][]string{{
					strconv.Itoa(stats.TotalDays),
					strconv.Itoa(stats.AttendedDays),
					strconv.Itoa(stats.Percentage) + "%",
					strconv.Itoa(stats.Streak),
				}})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
