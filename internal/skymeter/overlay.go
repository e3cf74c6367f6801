package skymeter

import (
	"encoding/json"
	"fmt"

	"github.com/ztkent/sky-quality-meter/internal/seed"
)

const overlayTimeLayout = "2006-01-02 15:04:05"

// OverlayRecord is the JSON document read by the allsky overlay module.
type OverlayRecord struct {
	MPSAS     float64 `json:"AS_PISQM_MPSAS"`
	Gain      int     `json:"AS_PISQM_GAIN"`
	IntegMs   int     `json:"AS_PISQM_INT"`
	Timestamp string  `json:"AS_PISQM_TIMESTAMP"`
	M0        float64 `json:"AS_PISQM_CONFIG_M0"`
	GA        float64 `json:"AS_PISQM_CONFIG_GA"`
}

func NewOverlayRecord(r Result) OverlayRecord {
	return OverlayRecord{
		MPSAS:     r.RoundedMagnitude(),
		Gain:      r.GainCode,
		IntegMs:   r.IntegrationMs,
		Timestamp: r.Timestamp.Format(overlayTimeLayout),
		M0:        r.Calibration.M0,
		GA:        r.Calibration.GA,
	}
}

// WriteOverlay replaces the overlay file at path with the record for r.
func WriteOverlay(path string, r Result) error {
	data, err := json.MarshalIndent(NewOverlayRecord(r), "", "  ")
	if err != nil {
		return err
	}
	if err := seed.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write overlay %s: %w", path, err)
	}
	return nil
}
