package boltzmann

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Progress is reported once per training epoch.
type Progress struct {
	Layer            int
	Epoch            int
	Epochs           int
	Error            float64
	PseudoLikelihood float64
	Eta              float64
}

func (p Progress) String() string {
	return fmt.Sprintf("layer %d epoch %d/%d: error=%.6f pl=%.6f eta=%.6g", p.Layer, p.Epoch, p.Epochs, p.Error, p.PseudoLikelihood, p.Eta)
}

// A Reporter receives training progress.
type Reporter interface {
	Report(p Progress)
}

type ReporterFunc func(Progress)

func (f ReporterFunc) Report(p Progress) {
	f(p)
}

// LogReporter writes progress as structured log entries.
type LogReporter struct {
	Logger logrus.FieldLogger
}

func NewLogReporter(l *logrus.Logger) *LogReporter {
	if l == nil {
		l = logrus.New()
	}
	return &LogReporter{Logger: l}
}

func (r *LogReporter) Report(p Progress) {
	r.Logger.WithFields(logrus.Fields{
		"layer": p.Layer,
		"epoch": p.Epoch,
		"error": p.Error,
		"pl":    p.PseudoLikelihood,
		"eta":   p.Eta,
	}).Info("epoch finished")
}
