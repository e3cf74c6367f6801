package skymeter

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

//go:embed html/*
var templateFiles embed.FS

// NewRouter wires the dashboard, the JSON API and the service id route.
func (m *SkyMeter) NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: m.log, NoColor: true}))
	r.Use(handleServerPanic)

	r.Get("/", m.ServeDashboard())
	r.Route("/skymeter", func(r chi.Router) {
		r.Get("/start", m.Start())
		r.Get("/stop", m.Stop())
		r.Get("/measure", m.MeasureNow())
		r.Get("/current-conditions", m.CurrentConditions())
		r.Get("/export", m.ServeResultsDB())
		r.Post("/graph", m.ServeResultsGraph())
		r.Get("/status", m.ServeSensorStatus())
		r.Post("/results", m.ServeResultsTab())
		r.Get("/clear", m.Clear())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/start", m.Start())
		r.Get("/stop", m.Stop())
		r.Get("/measure", m.MeasureNow())
		r.Get("/current-conditions", m.CurrentConditions())
		r.Get("/export", m.ServeResultsDB())
		r.Get("/status", m.ServeSensorStatus())
	})

	r.Get("/id", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			ServiceName string `json:"service_name"`
		}{
			ServiceName: "Sky Quality Meter",
		})
	})
	return r
}

// Start the periodic measurement job
func (m *SkyMeter) Start() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := m.StartJob()
		if errors.Is(err, ErrJobRunning) {
			ServeResponse(w, r, "The meter is already started", http.StatusBadRequest)
			return
		} else if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		ServeResponse(w, r, "Sky Quality Reading Started: "+jobID, http.StatusOK)
	}
}

// Stop the periodic measurement job
func (m *SkyMeter) Stop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := m.StopJob(); errors.Is(err, ErrJobNotRunning) {
			ServeResponse(w, r, "The meter is already stopped", http.StatusBadRequest)
			return
		} else if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		ServeResponse(w, r, "Sky Quality Reading Stopped", http.StatusOK)
	}
}

// Take a single measurement now and record it
func (m *SkyMeter) MeasureNow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := m.Measure(r.Context())
		if errors.Is(err, ErrBusy) {
			ServeResponse(w, r, err.Error(), http.StatusConflict)
			return
		} else if err != nil {
			m.log.WithError(err).Error("measurement failed")
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		res.JobID = uuid.New().String()
		if err := m.Record(r.Context(), res); err != nil {
			m.log.WithError(err).Error("failed to record result")
		}

		if isAPI(r) {
			writeJSON(w, http.StatusOK, res)
			return
		}
		ServeResponse(w, r, fmt.Sprintf("%.2f mag/arcsec² (%s, %dms, %s)",
			res.Magnitude, res.Gain, res.IntegrationMs, res.Outcome), http.StatusOK)
	}
}

// Serve data about the most recent entry saved to the db
func (m *SkyMeter) CurrentConditions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conditions, err := m.getCurrentConditions(r.Context())
		if errors.Is(err, sql.ErrNoRows) {
			ServeResponse(w, r, "No readings have been recorded", http.StatusNotFound)
			return
		} else if err != nil {
			m.log.WithError(err).Error("failed to read current conditions")
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}

		if isAPI(r) {
			writeJSON(w, http.StatusOK, conditions)
			return
		}
		ServeResponse(w, r, fmt.Sprintf("%.2f mag/arcsec² at %s (%s)",
			conditions.Magnitude, conditions.RecordedAt, conditions.SkyCondition), http.StatusOK)
	}
}

// Status of the sensor and the measurement job
func (m *SkyMeter) ServeSensorStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type Status struct {
			Connected bool    `json:"connected"`
			Running   bool    `json:"running"`
			Preset    string  `json:"preset"`
			Pid       int     `json:"pid"`
			Last      *Result `json:"last,omitempty"`
		}
		status := Status{
			Connected: m.Connected(),
			Running:   m.Running(),
			Preset:    m.ranger.Preset().Name,
			Pid:       m.Pid,
		}
		if last, ok := m.LastResult(); ok {
			status.Last = &last
		}

		if isAPI(r) {
			writeJSON(w, http.StatusOK, status)
			return
		}
		tmpl, err := parseTemplateFile("html/status.gohtml")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := tmpl.Execute(w, status); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// Serve the sqlite db for download
func (m *SkyMeter) ServeResultsDB() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.opts.DBPath == "" {
			ServeResponse(w, r, "No results database is configured", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=skyquality.db")
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeFile(w, r, m.opts.DBPath)
	}
}

// Used to clear a div with htmx
func (m *SkyMeter) Clear() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {}
}

// Populate the response div with a message, or reply with a JSON message
func ServeResponse(w http.ResponseWriter, r *http.Request, message string, status int) {
	if isAPI(r) {
		writeJSON(w, status, map[string]string{"message": message})
		return
	}

	tmpl, err := parseTemplateFile("html/response.gohtml")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// htmx only swaps 2xx responses, the message carries the failure
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	tmpl.Execute(w, message)
}

func isAPI(r *http.Request) bool {
	return strings.Contains(r.URL.Path, "/api/v1/")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseTemplateFile(path string) (*template.Template, error) {
	content, err := templateFiles.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded template: %w", err)
	}
	tmpl, err := template.New(path).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, nil
}

func handleServerPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				ServeResponse(w, r, fmt.Sprintf("%v", err), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
