// Package invoker implements C5, the Plugin Invoker of spec.md §4.6:
// resolves a plugin, validates its parameters, and executes it as a
// subprocess speaking JSON on stdin/stdout, grounded on the teacher's
// internal/task-worker/executors/python_executor.go temp-file +
// os/exec + timeout-via-goroutine pattern, generalized from a fixed
// Python-only executor to the manifest-declared entrypoint contract.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pluginsched/internal/errs"
	"pluginsched/internal/registry"
)

// Status is the outcome of one plugin execution, spec.md §4.6 step 6.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the structured execution outcome returned to the caller.
type Result struct {
	Status    Status      `json:"status"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// stdinPayload is what the subprocess receives on stdin: the resolved
// entrypoint and validated parameters.
type stdinPayload struct {
	EntryPoint string                 `json:"entry_point"`
	Parameters map[string]interface{} `json:"parameters"`
}

// DefaultTimeout is used when a caller does not specify one.
const DefaultTimeout = 30 * time.Second

// Invoker is C5's operation set.
type Invoker interface {
	Execute(ctx context.Context, pluginName string, parameters map[string]interface{}, timeout time.Duration) (Result, error)
}

type subprocessInvoker struct {
	reg        registry.Registry
	hotLoader  dirtyChecker
	runtimeBin string
	log        zerolog.Logger
}

// dirtyChecker is the narrow slice of hotload.Loader the invoker needs,
// kept as its own interface so this package does not import hotload
// directly and stays testable with a fake.
type dirtyChecker interface {
	IsDirty(pluginName string) bool
	ClearDirty(pluginName string)
}

// New constructs an invoker. runtimeBin is the interpreter used to run a
// plugin's entrypoint module (e.g. "python3"); it is invoked with the
// plugin's materialized dependency root on PYTHONPATH.
func New(reg registry.Registry, hotLoader dirtyChecker, runtimeBin string, log zerolog.Logger) Invoker {
	return &subprocessInvoker{reg: reg, hotLoader: hotLoader, runtimeBin: runtimeBin, log: log}
}

// Execute implements spec.md §4.6's six-step contract.
func (inv *subprocessInvoker) Execute(ctx context.Context, pluginName string, parameters map[string]interface{}, timeout time.Duration) (Result, error) {
	// Step 1: resolve plugin, reject disabled/unknown.
	entry, ok := inv.reg.Get(pluginName)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", errs.ErrPluginNotAvailable, pluginName)
	}
	if !entry.Manifest.Enabled {
		return Result{}, fmt.Errorf("%w: %s is disabled", errs.ErrPluginNotAvailable, pluginName)
	}

	// Step 2: reload if dirty, so execution always uses latest on-disk content.
	if inv.hotLoader != nil && inv.hotLoader.IsDirty(pluginName) {
		if err := inv.reg.Reload(pluginName); err != nil {
			return Result{}, fmt.Errorf("reload dirty plugin %s: %w", pluginName, err)
		}
		inv.hotLoader.ClearDirty(pluginName)
		entry, _ = inv.reg.Get(pluginName)
	}

	// Step 3: validate parameters against manifest.
	validated, err := registry.ValidateParameters(entry.Manifest, parameters)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", errs.ErrParameterInvalid, err)
	}

	// Step 4/5: scoped env acquisition + dependency root + entrypoint
	// resolution, all folded into the subprocess's isolated environment —
	// a private []string passed to exec.Cmd.Env rather than any mutation
	// of the parent process's environment, which already satisfies the
	// "never mutate the shared environment" requirement.
	depEnv, err := inv.reg.DependencyEnvFor(pluginName)
	if err != nil {
		return Result{}, fmt.Errorf("resolve dependency environment for %s: %w", pluginName, err)
	}
	envLayers, err := inv.reg.EnvLayersFor(pluginName)
	if err != nil {
		return Result{}, fmt.Errorf("resolve env layers for %s: %w", pluginName, err)
	}
	cmdEnv := buildScopedEnv(depEnv.PythonPath(), envLayers)

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	result, err := inv.runSubprocess(ctx, entry.Dir, entry.Manifest.EntryPoint, validated, cmdEnv, timeout)
	if err != nil {
		// Step 6: plugin body errors are caught and reported, never propagated.
		return Result{
			Status:    StatusError,
			Error:     err.Error(),
			Timestamp: time.Now(),
		}, nil
	}
	return result, nil
}

// buildScopedEnv constructs the private environment slice for the
// subprocess: a fixed system PATH, plus PYTHONPATH rooted at the plugin's
// dependency environment, plus the two env-file layers, spec.md §4.6 step
// 4. Nothing from the parent process's os.Environ() is copied in, not even
// its PATH — a narrower scope than the teacher's PythonExecutor, which
// inherits the parent's full environment unfiltered.
func buildScopedEnv(pythonPath string, layers map[string]string) []string {
	env := []string{
		"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
		"PYTHONPATH=" + pythonPath,
	}
	for k, v := range layers {
		env = append(env, k+"="+v)
	}
	return env
}

// runSubprocess launches the plugin's entrypoint with the validated
// parameters on stdin and decodes a structured Result from stdout,
// enforcing timeout via exec.CommandContext, which kills the process once
// the context deadline passes.
func (inv *subprocessInvoker) runSubprocess(ctx context.Context, pluginDir, entryPoint string, parameters map[string]interface{}, env []string, timeout time.Duration) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	module, _ := splitEntryPoint(entryPoint)
	scriptPath := module + ".py"

	payload, err := json.Marshal(stdinPayload{EntryPoint: entryPoint, Parameters: parameters})
	if err != nil {
		return Result{}, fmt.Errorf("marshal invocation payload: %w", err)
	}

	cmd := exec.CommandContext(runCtx, inv.runtimeBin, scriptPath)
	cmd.Dir = pluginDir
	cmd.Env = env
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return Result{}, fmt.Errorf("%w: plugin execution timed out after %s", errs.ErrPluginRuntimeError, timeout)
	}
	if runErr != nil {
		return Result{}, fmt.Errorf("%w: %v: %s", errs.ErrPluginRuntimeError, runErr, stderr.String())
	}

	var result Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		// Plugins that don't emit structured JSON still succeeded; wrap
		// their raw stdout as the result payload.
		result = Result{Status: StatusSuccess, Result: stdout.String()}
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}
	if result.Status == "" {
		result.Status = StatusSuccess
	}
	return result, nil
}

// splitEntryPoint splits a manifest's "module.function" entrypoint into
// its module and function parts, per spec.md §3.
func splitEntryPoint(entryPoint string) (module, function string) {
	idx := strings.LastIndex(entryPoint, ".")
	if idx < 0 {
		return entryPoint, ""
	}
	return entryPoint[:idx], entryPoint[idx+1:]
}
