package skymeter

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/ztkent/sky-quality-meter/internal/tools"
	"github.com/ztkent/sky-quality-meter/tsl2591"
)

const graphFallback = 12 * time.Hour

type Conditions struct {
	JobID         string  `json:"jobID"`
	Magnitude     float64 `json:"magnitude"`
	Lux           float64 `json:"lux"`
	Gain          int     `json:"gain"`
	IntegrationMs int     `json:"integrationMs"`
	Outcome       string  `json:"outcome"`
	RecordedAt    string  `json:"recordedAt"`
	SkyCondition  string  `json:"skyCondition"`

	DateRange               string  `json:"dateRange,omitempty"`
	ReadingsInRange         int     `json:"readingsInRange,omitempty"`
	AverageMagnitudeInRange float64 `json:"averageMagnitudeInRange,omitempty"`
	DarkestInRange          float64 `json:"darkestInRange,omitempty"`
	BrightestInRange        float64 `json:"brightestInRange,omitempty"`
	SkyConditionInRange     string  `json:"skyConditionInRange,omitempty"`
}

// skyBands are lower bounds in mag/arcsec², darkest first.
var skyBands = []struct {
	mpsas float64
	name  string
	color string
}{
	{21.7, "Excellent Dark Sky", "MidnightBlue"},
	{21.3, "Dark Sky", "SteelBlue"},
	{20.5, "Rural", "SeaGreen"},
	{19.5, "Suburban", "Goldenrod"},
	{18.5, "Bright Suburban", "DarkOrange"},
}

// SkyCondition names the sky class for a brightness in mag/arcsec².
func SkyCondition(mpsas float64) string {
	if mpsas >= tsl2591.DarkLimit {
		return "Beyond Sensor Limit"
	}
	for _, b := range skyBands {
		if mpsas >= b.mpsas {
			return b.name
		}
	}
	return "Urban"
}

// Serve the homepage
func (m *SkyMeter) ServeDashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content, err := templateFiles.ReadFile("html/dashboard.html")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write(content)
	}
}

// Serve the magnitude graph for the requested range
func (m *SkyMeter) ServeResultsGraph() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.ResultsDB == nil {
			ServeResponse(w, r, "No results database is configured", http.StatusNotFound)
			return
		}
		startDate, endDate := tools.ParseStartAndEndDate(r, time.Local, graphFallback)

		rows, err := m.ResultsDB.QueryContext(r.Context(),
			`SELECT magnitude, created_at FROM sky_quality
			WHERE created_at BETWEEN ? AND ? AND magnitude < ?
			ORDER BY created_at`, startDate, endDate, tsl2591.DarkLimit)
		if err != nil {
			m.log.WithError(err).Error("failed to query graph data")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		var magValues []opts.LineData
		var timeValues []string
		minMag, maxMag := 18.0, 22.0
		for rows.Next() {
			var mag float64
			var createdAt time.Time
			if err := rows.Scan(&mag, &createdAt); err != nil {
				m.log.WithError(err).Error("failed to scan graph row")
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			minMag = math.Min(minMag, math.Floor(mag))
			maxMag = math.Max(maxMag, math.Ceil(mag))
			magValues = append(magValues, opts.LineData{Value: mag})
			timeValues = append(timeValues, createdAt.Local().Format(tools.LayoutDB))
		}
		if err := rows.Err(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		line := charts.NewLine()
		for _, band := range skyBands {
			level := make([]opts.LineData, len(timeValues))
			for i := range level {
				level[i] = opts.LineData{Value: band.mpsas}
			}
			line.AddSeries(band.name, level, charts.WithLineChartOpts(opts.LineChart{
				Color: band.color,
			}))
		}

		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{
				Theme: types.ThemeChalk,
			}),
			charts.WithXAxisOpts(opts.XAxis{
				Name: "Time",
			}),
			charts.WithYAxisOpts(opts.YAxis{
				Name: "mag/arcsec²",
				Min:  fmt.Sprintf("%.0f", minMag),
				Max:  fmt.Sprintf("%.0f", maxMag),
			}),
			charts.WithTooltipOpts(opts.Tooltip{
				Show:      true,
				Trigger:   "axis",
				TriggerOn: "mousemove",
				Formatter: fmt.Sprintf("{a%d}: {c%d}<br> Time: {b0}", len(skyBands), len(skyBands)),
			}),
			charts.WithToolboxOpts(opts.Toolbox{
				Show: true,
				Feature: &opts.ToolBoxFeature{
					SaveAsImage: &opts.ToolBoxFeatureSaveAsImage{
						Show:  true,
						Title: "Save as Image",
						Name:  "sky-quality-meter",
					},
				},
			}),
		)
		line.SetXAxis(timeValues).AddSeries("MPSAS", magValues)

		page := components.NewPage()
		page.AddCharts(line)

		w.Header().Set("Content-Type", "text/html")
		page.Render(w)
		// Trigger an update for the results tab
		w.Write([]byte(`<div id='resultUpdateTrigger' hx-post='/skymeter/results' hx-target='#resultsContent' hx-trigger='load' hx-include='#dateRange'></div>`))
		w.Write([]byte(`<script>document.title = "Sky Quality Meter";</script>`))
	}
}

// Update the info in the results tab
func (m *SkyMeter) ServeResultsTab() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conditions, err := m.getCurrentConditions(r.Context())
		if err != nil && err != sql.ErrNoRows {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		startDate, endDate := tools.ParseStartAndEndDate(r, time.Local, graphFallback)
		conditions, err = m.getHistoricalConditions(r.Context(), conditions, startDate, endDate)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		tmpl, err := parseTemplateFile("html/results.gohtml")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		type ConditionsForDisplay struct {
			JobID               string
			Magnitude           string
			Lux                 string
			Settings            string
			Outcome             string
			RecordedAt          string
			SkyCondition        string
			DateRange           string
			ReadingsInRange     int
			AverageInRange      string
			DarkestInRange      string
			BrightestInRange    string
			SkyConditionInRange string
		}
		err = tmpl.Execute(w, ConditionsForDisplay{
			JobID:               conditions.JobID,
			Magnitude:           fmt.Sprintf("%.2f", conditions.Magnitude),
			Lux:                 fmt.Sprintf("%.4f", conditions.Lux),
			Settings:            fmt.Sprintf("gain 0x%02X, %dms", conditions.Gain, conditions.IntegrationMs),
			Outcome:             conditions.Outcome,
			RecordedAt:          conditions.RecordedAt,
			SkyCondition:        conditions.SkyCondition,
			DateRange:           conditions.DateRange,
			ReadingsInRange:     conditions.ReadingsInRange,
			AverageInRange:      fmt.Sprintf("%.2f", conditions.AverageMagnitudeInRange),
			DarkestInRange:      fmt.Sprintf("%.2f", conditions.DarkestInRange),
			BrightestInRange:    fmt.Sprintf("%.2f", conditions.BrightestInRange),
			SkyConditionInRange: conditions.SkyConditionInRange,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// Return the most recent entry saved to the db
func (m *SkyMeter) getCurrentConditions(ctx context.Context) (Conditions, error) {
	if m.ResultsDB == nil {
		return Conditions{}, sql.ErrNoRows
	}
	var c Conditions
	var createdAt time.Time
	row := m.ResultsDB.QueryRowContext(ctx,
		`SELECT job_id, magnitude, lux, gain, integration_ms, outcome, created_at
		FROM sky_quality ORDER BY id DESC LIMIT 1`)
	if err := row.Scan(&c.JobID, &c.Magnitude, &c.Lux, &c.Gain, &c.IntegrationMs, &c.Outcome, &createdAt); err != nil {
		return Conditions{}, err
	}
	c.RecordedAt = createdAt.Format(tools.LayoutDB) + " UTC"
	c.SkyCondition = SkyCondition(c.Magnitude)
	return c, nil
}

// Summarise the readings recorded in [startDate, endDate]. Readings at the
// dark limit carry no information and are left out.
func (m *SkyMeter) getHistoricalConditions(ctx context.Context, conditions Conditions, startDate, endDate string) (Conditions, error) {
	if m.ResultsDB == nil {
		return conditions, nil
	}
	conditions.DateRange = fmt.Sprintf("%s - %s UTC", startDate, endDate)

	row := m.ResultsDB.QueryRowContext(ctx, `
    SELECT
        COUNT(*),
        COALESCE(AVG(magnitude), 0),
        COALESCE(MAX(magnitude), 0),
        COALESCE(MIN(magnitude), 0)
    FROM sky_quality
    WHERE created_at BETWEEN ? AND ? AND magnitude < ?`, startDate, endDate, tsl2591.DarkLimit)
	err := row.Scan(
		&conditions.ReadingsInRange,
		&conditions.AverageMagnitudeInRange,
		&conditions.DarkestInRange,
		&conditions.BrightestInRange,
	)
	if err != nil {
		return conditions, err
	}
	if conditions.ReadingsInRange == 0 {
		conditions.SkyConditionInRange = "No Data in Range"
		return conditions, nil
	}
	conditions.SkyConditionInRange = SkyCondition(conditions.AverageMagnitudeInRange)
	return conditions, nil
}
