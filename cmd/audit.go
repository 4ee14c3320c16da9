package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print recorded unlock-time parse failures",
	Long: `Prints the durable audit log of unlock-time fragments that could not be
parsed. Each entry names the Steam language, game and achievement, plus the
raw text as scraped, which is exactly what a parser fix needs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			path = viper.GetString("audit.path")
		}

		f, err := os.Open(path)
		if os.IsNotExist(err) {
			fmt.Println("No parse failures recorded.")
			return nil
		}
		if err != nil {
			return err
		}
		defer f.Close()

		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		records, err := r.ReadAll()
		if err != nil {
			return err
		}
		if len(records) <= 1 {
			fmt.Println("No parse failures recorded.")
			return nil
		}

		rows := records[1:]
		if limit > 0 && len(rows) > limit {
			rows = rows[len(rows)-limit:]
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tLANGUAGE\tGAME\tACHIEVEMENT\tRAW TEXT\t")
		for _, rec := range rows {
			if len(rec) < 5 {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", rec[0], rec[1], rec[2], rec[3], rec[4])
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().Int("limit", 50, "Max entries to print, newest last")
	auditCmd.Flags().String("file", "", "Audit CSV file (default: audit.path from config)")
}
