package ingest

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Stage names used in notes and log fields.
const (
	StageArchive  = "archive"
	StageMetadata = "metadata"
	StageSpine    = "spine"
	StageTOC      = "toc"
	StageContent  = "content"
	StageImages   = "images"
)

// Note is a degraded condition met during a run. Notes never fail a run.
type Note struct {
	Stage   string `json:"stage"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (n Note) String() string {
	if n.Path == "" {
		return n.Stage + ": " + n.Message
	}
	return n.Stage + ": " + n.Path + ": " + n.Message
}

// diagnostics accumulates notes for one run and mirrors them to the log.
type diagnostics struct {
	log   logrus.FieldLogger
	notes []Note
}

func newDiagnostics(log logrus.FieldLogger) *diagnostics {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &diagnostics{log: log}
}

func (d *diagnostics) warn(stage, path, format string, args ...any) {
	n := Note{Stage: stage, Path: path, Message: fmt.Sprintf(format, args...)}
	d.notes = append(d.notes, n)
	fields := logrus.Fields{"stage": stage}
	if path != "" {
		fields["path"] = path
	}
	d.log.WithFields(fields).Warn(n.Message)
}
