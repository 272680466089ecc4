package solver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/foodbank-alloc/fbdam/internal/logging"
	"github.com/foodbank-alloc/fbdam/pkg/lp"
)

// HighsName is the registered name of the HiGHS backend.
const HighsName = "highs"

// HighsBackend runs the HiGHS command-line solver on an MPS export of the model.
type HighsBackend struct {
	binary string
}

// NewHighsBackend returns a backend invoking binary, or "highs" from PATH when empty.
func NewHighsBackend(binary string) *HighsBackend {
	if binary == "" {
		binary = "highs"
	}
	return &HighsBackend{binary: binary}
}

func (h *HighsBackend) Name() string { return HighsName }

func (h *HighsBackend) Solve(ctx context.Context, m *lp.Model, opts Options) (*Outcome, error) {
	logger := logging.FromContext(ctx)
	bin, err := exec.LookPath(h.binary)
	if err != nil {
		return nil, fmt.Errorf("highs executable not found: %w", err)
	}

	dir, err := os.MkdirTemp("", "fbdam-highs-")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Error(err, "Failed to remove solver scratch directory", "dir", dir)
		}
	}()

	modelPath := filepath.Join(dir, "model.mps")
	optionsPath := filepath.Join(dir, "highs.opt")
	solutionPath := filepath.Join(dir, "model.sol")

	if err := writeFile(modelPath, func(w io.Writer) error { return lp.WriteMPS(w, m) }); err != nil {
		return nil, fmt.Errorf("writing model: %w", err)
	}
	if err := writeFile(optionsPath, func(w io.Writer) error { return writeHighsOptions(w, opts) }); err != nil {
		return nil, fmt.Errorf("writing options: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin,
		"--model_file", modelPath,
		"--options_file", optionsPath,
		"--solution_file", solutionPath)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	logger.V(logging.DEBUG).Info("Running HiGHS", "binary", bin, "model", modelPath)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("highs failed: %w: %s", err, tail(output.String(), 512))
	}

	f, err := os.Open(solutionPath)
	if err != nil {
		return nil, fmt.Errorf("reading solution: %w", err)
	}
	defer f.Close()
	return parseHighsSolution(f, m)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeHighsOptions(w io.Writer, opts Options) error {
	lines := map[string]string{
		"mip_rel_gap": strconv.FormatFloat(opts.RelGap, 'g', -1, 64),
	}
	if opts.TimeLimit > 0 {
		lines["time_limit"] = strconv.FormatFloat(opts.TimeLimit.Seconds(), 'g', -1, 64)
	}
	if opts.Threads > 0 {
		lines["threads"] = strconv.Itoa(opts.Threads)
	}
	for k, v := range opts.Extra {
		if k == "node_limit" {
			lines["mip_max_nodes"] = v
			continue
		}
		lines[k] = v
	}
	keys := make([]string, 0, len(lines))
	for k := range lines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s = %s\n", k, lines[k]); err != nil {
			return err
		}
	}
	return nil
}

// parseHighsSolution reads the "raw" solution file layout written by HiGHS.
func parseHighsSolution(r io.Reader, m *lp.Model) (*Outcome, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	out := &Outcome{}
	var (
		values   map[string]float64
		primal   bool
		readCols int
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "Model status":
			if sc.Scan() {
				out.Termination = strings.TrimSpace(sc.Text())
			}
		case line == "# Primal solution values":
			if sc.Scan() {
				primal = strings.EqualFold(strings.TrimSpace(sc.Text()), "feasible")
			}
		case primal && values == nil && strings.HasPrefix(line, "Objective "):
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "Objective ")), 64)
			if err == nil {
				out.Objective = &v
			}
		case primal && values == nil && strings.HasPrefix(line, "# Columns "):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "# Columns ")))
			if err != nil {
				return nil, fmt.Errorf("malformed column header %q", line)
			}
			values = make(map[string]float64, n)
			readCols = n
		case readCols > 0:
			fields := strings.Fields(line)
			if len(fields) != 2 {
				return nil, fmt.Errorf("malformed column line %q", line)
			}
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("malformed value for %q: %w", fields[0], err)
			}
			values[fields[0]] = v
			readCols--
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if out.Termination == "" {
		return nil, fmt.Errorf("solution file has no model status")
	}
	if values != nil {
		out.Values = make([]float64, len(m.Vars))
		for j, v := range m.Vars {
			x, ok := values[v.Name]
			if !ok {
				return nil, fmt.Errorf("solution has no value for %q", v.Name)
			}
			out.Values[j] = x
		}
	}
	return out, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
