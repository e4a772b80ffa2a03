// -----------------------------------------------------------------------
// Pattern Detector - Subprocess boundary for the duplicate-detection pipeline
// -----------------------------------------------------------------------

package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
)

// Invoker runs the detector binary. Everything in this file goes through an
// Invoker so tests can script detector output without a real subprocess.
type Invoker interface {
	Invoke(ctx context.Context, binary string, args []string) (stdout string, err error)
}

// osInvoker shells out via exec.CommandContext.
type osInvoker struct{}

func (osInvoker) Invoke(ctx context.Context, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s %s failed: %w\nstderr: %s",
			binary, strings.Join(args, " "), err, stderr.String())
	}

	return stdout.String(), nil
}

// detectorRule is one entry of the ast-grep-style rules file.
type detectorRule struct {
	ID       string `yaml:"id"`
	Language string `yaml:"language"`
	Severity string `yaml:"severity"`
}

// Detector invokes the external duplicate-detection binary and normalizes its
// JSON-over-stdout envelope. The binary owns the language analysis; this
// layer owns arguments, timeout, and failure classification.
type Detector struct {
	cfg     common.ScannerConfig
	invoker Invoker
	logger  arbor.ILogger
	timeout time.Duration
}

// NewDetector creates a detector shim around the configured binary.
func NewDetector(cfg common.ScannerConfig, logger arbor.ILogger) *Detector {
	return NewDetectorWithInvoker(cfg, osInvoker{}, logger)
}

// NewDetectorWithInvoker creates a detector with an injected subprocess seam.
func NewDetectorWithInvoker(cfg common.ScannerConfig, invoker Invoker, logger arbor.ILogger) *Detector {
	if cfg.Binary == "" {
		cfg.Binary = "pattern-detector"
	}
	return &Detector{
		cfg:     cfg,
		invoker: invoker,
		logger:  logger,
		timeout: cfg.TimeoutDuration(),
	}
}

// Detect runs one detector invocation against a repository and parses the
// result envelope. Failures carry a classification code so the retry policy
// can distinguish a flaky scan from a missing binary.
func (d *Detector) Detect(ctx context.Context, repoPath string, opts interfaces.ScanOptions) (models.ScanResult, error) {
	args := d.buildArgs(repoPath, opts)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	d.logger.Info().
		Str("binary", d.cfg.Binary).
		Str("repository", repoPath).
		Str("scan_type", scanType(opts)).
		Msg("Pattern detector started")

	stdout, err := d.invoker.Invoke(ctx, d.cfg.Binary, args)
	if err != nil {
		jobErr := classifyDetectorError(ctx, err)
		d.logger.Warn().
			Str("repository", repoPath).
			Str("code", jobErr.Code).
			Str("error", jobErr.Message).
			Msg("Pattern detector failed")
		return nil, jobErr
	}

	var result models.ScanResult
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		return nil, &models.JobError{
			Message: fmt.Sprintf("detector produced invalid JSON: %v", err),
		}
	}

	normalizeResult(result, opts)

	d.logger.Info().
		Str("repository", repoPath).
		Str("scan_type", result.ScanType()).
		Int("groups", result.TotalGroups()).
		Dur("elapsed", time.Since(start)).
		Msg("Pattern detector finished")

	return result, nil
}

// buildArgs assembles the detector command line from the request and config.
func (d *Detector) buildArgs(repoPath string, opts interfaces.ScanOptions) []string {
	args := []string{
		"--repository", repoPath,
		"--scan-type", scanType(opts),
		"--max-depth", strconv.Itoa(d.maxDepth(opts)),
	}
	if opts.IncludeTests || d.cfg.IncludeTests {
		args = append(args, "--include-tests")
	}
	args = append(args, "--output", "json")

	if rules := d.rulesFlag(); rules != "" {
		args = append(args, "--rules", rules)
	}
	return args
}

// rulesFlag validates the configured rules file and returns its path, or ""
// when the file is absent or unusable. A broken rules file downgrades the
// scan to the detector's built-in rules rather than failing it.
func (d *Detector) rulesFlag() string {
	path := d.cfg.RulesFile
	if path == "" {
		return ""
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			d.logger.Debug().Str("rules_file", path).Msg("Rules file not found; using detector defaults")
		} else {
			d.logger.Warn().Err(err).Str("rules_file", path).Msg("Rules file unreadable; using detector defaults")
		}
		return ""
	}

	var rules []detectorRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		d.logger.Warn().Err(err).Str("rules_file", path).Msg("Rules file is not valid YAML; using detector defaults")
		return ""
	}
	for i, rule := range rules {
		if rule.ID == "" {
			d.logger.Warn().
				Str("rules_file", path).
				Int("index", i).
				Msg("Rules file entry missing id; using detector defaults")
			return ""
		}
	}

	return path
}

func (d *Detector) maxDepth(opts interfaces.ScanOptions) int {
	if opts.MaxDepth > 0 {
		return opts.MaxDepth
	}
	if d.cfg.MaxDepth > 0 {
		return d.cfg.MaxDepth
	}
	return 2
}

func scanType(opts interfaces.ScanOptions) string {
	if opts.ScanType == models.ScanTypeInterProject {
		return models.ScanTypeInterProject
	}
	return models.ScanTypeIntraProject
}

// normalizeResult guarantees the envelope fields downstream readers rely on.
func normalizeResult(result models.ScanResult, opts interfaces.ScanOptions) {
	if _, ok := result["scan_type"].(string); !ok {
		result["scan_type"] = scanType(opts)
	}
	if _, ok := result["metrics"].(map[string]interface{}); !ok {
		result["metrics"] = map[string]interface{}{}
	}
}

// classifyDetectorError maps subprocess failures onto retry policy codes.
// A missing binary or permission problem will not heal on its own; timeouts
// earn another attempt.
func classifyDetectorError(ctx context.Context, err error) *models.JobError {
	switch {
	case errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist):
		return &models.JobError{Message: err.Error(), Code: "ENOENT"}
	case errors.Is(err, os.ErrPermission):
		return &models.JobError{Message: err.Error(), Code: "EACCES"}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &models.JobError{Message: err.Error(), Code: "ETIMEDOUT"}
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return &models.JobError{Message: err.Error(), Cancelled: true}
	default:
		return &models.JobError{Message: err.Error()}
	}
}

var _ interfaces.PatternDetector = (*Detector)(nil)
