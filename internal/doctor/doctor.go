// Package doctor runs preflight checks: can the config be loaded, is the
// fact-check service reachable, and can logs be written.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultProbeTimeout = 5 * time.Second

// CheckStatus is the outcome of one preflight check.
type CheckStatus string

const (
	// CheckOK indicates the check passed.
	CheckOK CheckStatus = "ok"
	// CheckFailed indicates the check failed with a reason.
	CheckFailed CheckStatus = "failed"
)

// CheckResult is one line of the doctor report.
type CheckResult struct {
	Name   string
	Status CheckStatus
	Detail string
}

// Report collects all preflight check outcomes.
type Report struct {
	Checks []CheckResult
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool {
	for _, check := range r.Checks {
		if check.Status != CheckOK {
			return false
		}
	}
	return true
}

// Probe issues the HTTP reachability request for the service check.
type Probe interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customizes Doctor construction.
type Option func(*Doctor)

// WithProbe injects the HTTP prober used for the service reachability check.
func WithProbe(probe Probe) Option {
	return func(d *Doctor) {
		if probe != nil {
			d.probe = probe
		}
	}
}

// WithHomeDir overrides home directory resolution, primarily for tests.
func WithHomeDir(resolve func() (string, error)) Option {
	return func(d *Doctor) {
		if resolve != nil {
			d.homeDir = resolve
		}
	}
}

// Doctor executes preflight checks against one service deployment.
type Doctor struct {
	serverURL string
	probe     Probe
	homeDir   func() (string, error)
}

// New builds a doctor for the given service base URL.
func New(serverURL string, options ...Option) (*Doctor, error) {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if serverURL == "" {
		return nil, errors.New("server url is required")
	}

	doctor := &Doctor{
		serverURL: serverURL,
		probe:     &http.Client{Timeout: defaultProbeTimeout},
		homeDir:   os.UserHomeDir,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(doctor)
	}
	return doctor, nil
}

// Run executes every preflight check and returns the combined report.
func (d *Doctor) Run(ctx context.Context) Report {
	return Report{
		Checks: []CheckResult{
			d.checkService(ctx),
			d.checkLogDir(),
		},
	}
}

func (d *Doctor) checkService(ctx context.Context) CheckResult {
	result := CheckResult{Name: "service reachable"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.serverURL+"/health", nil)
	if err != nil {
		result.Status = CheckFailed
		result.Detail = fmt.Sprintf("build health request: %v", err)
		return result
	}

	resp, err := d.probe.Do(req)
	if err != nil {
		result.Status = CheckFailed
		result.Detail = fmt.Sprintf("service at %s is unreachable: %v", d.serverURL, err)
		return result
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// 404 still proves the deployment answers; only 5xx and transport
	// failures count against it.
	if resp.StatusCode >= 500 {
		result.Status = CheckFailed
		result.Detail = fmt.Sprintf("service at %s answered %d", d.serverURL, resp.StatusCode)
		return result
	}

	result.Status = CheckOK
	result.Detail = fmt.Sprintf("service at %s answered %d", d.serverURL, resp.StatusCode)
	return result
}

func (d *Doctor) checkLogDir() CheckResult {
	result := CheckResult{Name: "log directory writable"}

	homeDir, err := d.homeDir()
	if err != nil {
		result.Status = CheckFailed
		result.Detail = fmt.Sprintf("resolve home directory: %v", err)
		return result
	}

	logDir := filepath.Join(homeDir, ".pzl", "logs")
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		result.Status = CheckFailed
		result.Detail = fmt.Sprintf("create %s: %v", logDir, err)
		return result
	}

	marker, err := os.CreateTemp(logDir, ".doctor-*")
	if err != nil {
		result.Status = CheckFailed
		result.Detail = fmt.Sprintf("write probe file in %s: %v", logDir, err)
		return result
	}
	name := marker.Name()
	_ = marker.Close()
	_ = os.Remove(name)

	result.Status = CheckOK
	result.Detail = logDir
	return result
}
