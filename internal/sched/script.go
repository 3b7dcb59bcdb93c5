package sched

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
)

// batchTemplate is the submitted job script: an SBATCH directive header
// followed by the payload command. Optional directives are omitted entirely
// rather than rendered empty.
var batchTemplate = template.Must(template.New("sbatch").Parse(`#!/bin/bash
#SBATCH --job-name {{.JobName}}
#SBATCH --nodes {{.Nodes}}
#SBATCH --time {{.Time}}
{{- if .Mem}}
#SBATCH --mem {{.Mem}}
{{- end}}
{{- if .Partition}}
#SBATCH --partition {{.Partition}}
{{- end}}
{{- if .Output}}
#SBATCH --output {{.Output}}
{{- end}}
{{- if .MailTypes}}
#SBATCH --mail-type {{.MailTypeList}}
{{- if .MailUser}}
#SBATCH --mail-user {{.MailUser}}
{{- end}}
{{- end}}

{{.Payload}}
`))

type scriptData struct {
	Directives
	MailTypeList string
	Payload      string
}

// RenderScript renders the batch script for the given directives and payload
// command line. The job name is sanitized to the scheduler's safe character
// set before rendering.
func RenderScript(d Directives, payload string) (string, error) {
	d.JobName = SanitizeJobName(d.JobName)

	var buf bytes.Buffer
	data := scriptData{Directives: d, MailTypeList: d.mailTypeList(), Payload: payload}
	if err := batchTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render batch script: %w", err)
	}
	return buf.String(), nil
}

// WriteScript persists a rendered script, executable so it can also be run
// by hand while debugging.
func WriteScript(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return fmt.Errorf("write batch script: %w", err)
	}
	return nil
}
