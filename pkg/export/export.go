// Package export writes optimization task records for offline analysis.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/sitepower/core/dispatch/logging"
)

var csvHeader = []string{"task_id", "site_no", "trigger", "start_time", "demand_kw", "shortfall_kw", "charger_sn", "power_kw"}

// WriteJSON writes the records to w as one JSON array.
func WriteJSON(w io.Writer, recs []logging.TaskRecord) error {
	enc := json.NewEncoder(w)
	if recs == nil {
		recs = []logging.TaskRecord{}
	}
	return enc.Encode(recs)
}

// WriteCSV writes one row per profile entry. A task without profile entries
// still gets a row with empty connector columns.
func WriteCSV(w io.Writer, recs []logging.TaskRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range recs {
		base := []string{
			r.TaskID,
			r.SiteNo,
			r.Trigger,
			r.StartTime.UTC().Format(time.RFC3339),
			formatKW(r.Demand),
			formatKW(r.Shortfall),
		}
		if len(r.Profiles) == 0 {
			if err := cw.Write(append(base, "", "")); err != nil {
				return err
			}
			continue
		}
		for _, p := range r.Profiles {
			row := append(append([]string(nil), base...), p.ChargerSN, formatKW(p.Power))
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatKW(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
