// Package sched renders and submits the batch job that hosts a run. The
// directives in the script header are declarative metadata for the resource
// scheduler; poolpilot interprets none of them.
package sched

import (
	"strings"

	"git.home.luguber.info/inful/poolpilot/internal/config"
)

// Directives is the job metadata rendered into the batch script header.
type Directives struct {
	JobName   string
	Nodes     int
	Time      string // wall-time limit, scheduler syntax
	Mem       string // per-node memory, optional
	Partition string // optional
	Output    string // combined stdout/stderr path, optional
	MailTypes []string
	MailUser  string
}

// FromConfig maps scheduler configuration onto directives. The output path
// is per-run and therefore supplied by the caller.
func FromConfig(cfg config.SchedulerConfig, outputPath string) Directives {
	mail := make([]string, 0, len(cfg.MailType))
	for _, raw := range cfg.MailType {
		if mt := config.NormalizeMailType(raw); mt != "" {
			mail = append(mail, mt)
		}
	}
	return Directives{
		JobName:   cfg.JobName,
		Nodes:     cfg.Nodes,
		Time:      cfg.Time,
		Mem:       cfg.Mem,
		Partition: cfg.Partition,
		Output:    outputPath,
		MailTypes: mail,
		MailUser:  cfg.MailUser,
	}
}

// mailTypeList joins mail types the way the scheduler expects them.
func (d Directives) mailTypeList() string {
	return strings.Join(d.MailTypes, ",")
}
