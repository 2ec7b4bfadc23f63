package scheduler

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v2"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one recurring duplicate-row cleanup.
type Job struct {
	Name      string   `yaml:"name"`
	Table     string   `yaml:"table"`
	Partition []string `yaml:"partition"`
	Cron      string   `yaml:"cron"`
	Timezone  string   `yaml:"timezone,omitempty"`
}

type jobFile struct {
	Jobs []Job `yaml:"jobs"`
}

// LoadJobs reads and validates a YAML jobs file.
func LoadJobs(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	return ParseJobs(data)
}

// ParseJobs decodes a jobs document of the form:
//
//	jobs:
//	  - name: users-dedupe
//	    table: users
//	    partition: [email]
//	    cron: "0 3 * * *"
//	    timezone: Europe/Berlin
func ParseJobs(data []byte) ([]Job, error) {
	var f jobFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Jobs))
	for i, j := range f.Jobs {
		if err := j.validate(); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
		if _, dup := seen[j.Name]; dup {
			return nil, fmt.Errorf("job %d: duplicate name %q", i, j.Name)
		}
		seen[j.Name] = struct{}{}
	}
	return f.Jobs, nil
}

func (j Job) validate() error {
	switch {
	case strings.TrimSpace(j.Name) == "":
		return fmt.Errorf("name is required")
	case strings.TrimSpace(j.Table) == "":
		return fmt.Errorf("%s: table is required", j.Name)
	case len(j.Partition) == 0:
		return fmt.Errorf("%s: partition is required", j.Name)
	}
	if _, err := j.schedule(); err != nil {
		return fmt.Errorf("%s: %w", j.Name, err)
	}
	return nil
}

// cronExpr prefixes the expression with CRON_TZ when a timezone is set.
func (j Job) cronExpr() string {
	if j.Timezone == "" {
		return j.Cron
	}
	return "CRON_TZ=" + j.Timezone + " " + j.Cron
}

func (j Job) schedule() (cron.Schedule, error) {
	if j.Timezone != "" {
		if _, err := time.LoadLocation(j.Timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %s: %w", j.Timezone, err)
		}
	}
	s, err := parser.Parse(j.cronExpr())
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return s, nil
}

// NextRun returns the first run of j strictly after from, in UTC.
func (j Job) NextRun(from time.Time) (time.Time, error) {
	s, err := j.schedule()
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(from).UTC(), nil
}
