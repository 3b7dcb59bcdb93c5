package sched

import "os"

// Environment variables the scheduler injects into a running allocation.
const (
	EnvJobID    = "SLURM_JOB_ID"
	EnvJobName  = "SLURM_JOB_NAME"
	EnvNodeList = "SLURM_JOB_NODELIST"
)

// JobEnv describes the allocation poolpilot is running inside, if any.
type JobEnv struct {
	JobID    string
	JobName  string
	NodeList string
}

// ReadJobEnv inspects the process environment for scheduler context.
func ReadJobEnv() JobEnv {
	return JobEnv{
		JobID:    os.Getenv(EnvJobID),
		JobName:  os.Getenv(EnvJobName),
		NodeList: os.Getenv(EnvNodeList),
	}
}

// InAllocation reports whether the process runs inside a scheduler job.
func (e JobEnv) InAllocation() bool {
	return e.JobID != ""
}
