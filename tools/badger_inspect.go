package main

import (
	"encoding/json"
	"fmt"
	"io"
	"match-lab/domain"
	"match-lab/infrastructure/storage"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type inspectConfig struct {
	db     string
	room   string
	status string
}

func main() {
	cfg := &inspectConfig{}
	cobra.CheckErr(newCmd(cfg).Execute())
}

func newCmd(cfg *inspectConfig) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MATCHLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "badger-inspect",
		Short: "Read-only listing of the rooms and matches stored in a match-lab Badger directory.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := badger.Open(badger.DefaultOptions(cfg.db).
				WithReadOnly(true).
				WithBypassLockGuard(true).
				WithLoggingLevel(badger.WARNING))
			if err != nil {
				return fmt.Errorf("opening %s: %w", cfg.db, err)
			}
			defer db.Close()

			if cfg.room != "" {
				return renderMatches(cmd.OutOrStdout(), db, domain.RoomID(cfg.room))
			}
			return renderRooms(cmd.OutOrStdout(), db, cfg.status)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVar(&cfg.db, "db", "./data/badger", "path to the badger directory (env: MATCHLAB_DB)")
	fs.StringVar(&cfg.room, "room", "", "list the matches of one room instead of the rooms (env: MATCHLAB_ROOM)")
	fs.StringVar(&cfg.status, "status", "", "only list rooms in this status (env: MATCHLAB_STATUS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SilenceUsage = true
	return cmd
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func renderRooms(w io.Writer, db *badger.DB, status string) error {
	var filter *domain.Status
	if status != "" {
		s, err := domain.ParseStatus(status)
		if err != nil {
			return err
		}
		filter = &s
	}

	rooms, err := scan[domain.Room](db, "room:")
	if err != nil {
		return err
	}

	table := newTable(w, []string{"Room", "Code", "Status", "Host", "Guest", "Items", "Matches", "Seq", "Updated"})
	for _, room := range rooms {
		if filter != nil && room.Status != *filter {
			continue
		}
		table.Append([]string{
			string(room.ID),
			room.Code,
			colorStatus(room.Status),
			string(room.HostID),
			string(room.GuestID),
			strconv.Itoa(len(room.ItemIDs)),
			strconv.Itoa(room.MatchCount),
			strconv.FormatUint(room.EventSeq, 10),
			room.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	table.Render()
	return nil
}

func renderMatches(w io.Writer, db *badger.DB, roomID domain.RoomID) error {
	matches, err := scan[domain.Match](db, string(storage.RoomMatchPrefix(roomID)))
	if err != nil {
		return err
	}
	domain.SortMatches(matches)

	table := newTable(w, []string{"#", "Item", "Created"})
	for _, m := range matches {
		table.Append([]string{
			strconv.Itoa(m.Ordinal),
			string(m.ItemID),
			m.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	table.Render()
	return nil
}

// scan decodes every JSON value under prefix. Undecodable entries are reported and skipped.
func scan[T any](db *badger.DB, prefix string) ([]T, error) {
	var res []T
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var v T
				if err := json.Unmarshal(val, &v); err != nil {
					fmt.Fprintf(os.Stderr, "Error unmarshaling key %s: %v\n", item.Key(), err)
					return nil
				}
				res = append(res, v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return res, err
}

func colorStatus(s domain.Status) string {
	switch {
	case s == domain.StatusPlaying:
		return color.Green.Sprint(s.String())
	case s.IsPaused():
		return color.Yellow.Sprint(s.String())
	case s.IsTerminal():
		return color.Red.Sprint(s.String())
	default:
		return color.Cyan.Sprint(s.String())
	}
}
