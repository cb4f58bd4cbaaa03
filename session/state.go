package session

import (
	"github.com/cwbudde/algo-spectra/analysis"
	"github.com/cwbudde/algo-spectra/calib"
	"github.com/cwbudde/algo-spectra/frame"
	"github.com/cwbudde/algo-spectra/worker"
)

// Application modes.
const (
	ModeCore  = "CORE"
	ModeLab   = "LAB"
	ModeAstro = "ASTRO"
)

// Modes lists the application modes.
var Modes = []string{ModeCore, ModeLab, ModeAstro}

// FrameState is the frame domain.
type FrameState struct {
	Latest *frame.Frame `json:"latest"`
	Source string       `json:"source"`
}

// CalibrationState is the calibration domain.
type CalibrationState struct {
	IsCalibrated   bool               `json:"isCalibrated"`
	Coefficients   []float64          `json:"coefficients"`
	Degree         int                `json:"degree"`
	Points         []calib.Entry      `json:"points"`
	ResidualStatus string             `json:"residualStatus"`
	Diagnostics    *calib.Diagnostics `json:"diagnostics,omitempty"`
	LastError      *string            `json:"lastError"`
}

// DisplayState is the display domain. Nothing in this module reads it; it
// is carried for renderers sharing the store.
type DisplayState struct {
	Mode            string   `json:"mode"`
	YAxisMode       string   `json:"yAxisMode"`
	YAxisMax        float64  `json:"yAxisMax"`
	FillMode        string   `json:"fillMode"`
	FillOpacity     *float64 `json:"fillOpacity"`
	OverlaysEnabled bool     `json:"overlaysEnabled"`
}

// PeaksState is the peaks domain. ProminenceWindowPx is forwarded to the
// detector when positive.
type PeaksState struct {
	Threshold          *float64 `json:"threshold"`
	Distance           *int     `json:"distance"`
	Smoothing          *int     `json:"smoothing"`
	ProminenceWindowPx int      `json:"prominenceWindowPx,omitempty"`
}

// AnalysisState is the analysis domain. The switches are read by the worker
// client on every submission.
type AnalysisState struct {
	PresetID         string   `json:"presetId"`
	TopHits          []any    `json:"topHits"`
	OffsetNm         *float64 `json:"offsetNm"`
	QCFlags          []string `json:"qcFlags"`
	Confidence       float64  `json:"confidence"`
	IncludeWeakPeaks bool     `json:"includeWeakPeaks"`
	QualityChecks    bool     `json:"qualityChecks"`
	StableHits       bool     `json:"stableHits"`
}

// ReferenceState is the reference domain.
type ReferenceState struct {
	Count        int    `json:"count"`
	HasReference bool   `json:"hasReference"`
	UpdatedAt    *int64 `json:"updatedAt"`
}

// SubtractionState is the subtraction domain.
type SubtractionState struct {
	Mode         frame.Mode `json:"mode"`
	HasDark      bool       `json:"hasDark"`
	HasReference bool       `json:"hasReference"`
	HasFlat      bool       `json:"hasFlat"`
}

// State is the whole store document.
type State struct {
	AppMode     string           `json:"appMode"`
	Worker      worker.State     `json:"worker"`
	Frame       FrameState       `json:"frame"`
	Calibration CalibrationState `json:"calibration"`
	Reference   ReferenceState   `json:"reference"`
	Display     DisplayState     `json:"display"`
	Peaks       PeaksState       `json:"peaks"`
	Analysis    AnalysisState    `json:"analysis"`
	Subtraction SubtractionState `json:"subtraction"`
}

// DefaultState returns the initial document.
func DefaultState() State {
	return State{
		AppMode: ModeCore,
		Worker:  worker.DefaultState(),
		Frame:   FrameState{Source: "none"},
		Calibration: CalibrationState{
			Coefficients:   []float64{},
			Points:         []calib.Entry{},
			ResidualStatus: calib.ResidualUnknown,
		},
		Display: DisplayState{
			Mode:            "normal",
			YAxisMode:       "auto",
			YAxisMax:        255,
			FillMode:        "inherit",
			OverlaysEnabled: true,
		},
		Analysis: AnalysisState{
			PresetID: analysis.PresetGeneral,
			TopHits:  []any{},
			QCFlags:  []string{},
		},
		Subtraction: SubtractionState{Mode: frame.ModeRaw},
	}
}
