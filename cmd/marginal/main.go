// Command marginal answers posterior queries against a Bayesian network file.
//
//	marginal -net asia.bif -query dysp -evidence smoke=yes,asia=no
//	marginal -net asia.bif -all
//	marginal -net asia.bif -convert yaml > asia.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/marginal/internal/buildconfig"
	"github.com/Harshitk-cp/marginal/internal/config"
	"github.com/Harshitk-cp/marginal/internal/inference"
	"github.com/Harshitk-cp/marginal/internal/loader"
	"github.com/Harshitk-cp/marginal/internal/network"
)

type options struct {
	net       string
	query     []string
	evidence  map[string]string
	heuristic inference.Heuristic
	all       bool
	asJSON    bool
	convert   string
	order     bool
	timeout   time.Duration
	verbose   bool
	version   bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "marginal:", err)
		os.Exit(2)
	}

	_ = config.Load()
	logger, err := newLogger(opts.verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "marginal:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(opts, os.Stdout, logger); err != nil {
		fmt.Fprintln(os.Stderr, "marginal:", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("marginal", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		opts                            options
		query, evidence, heuristic, out string
	)
	fs.StringVar(&opts.net, "net", "", "network file (.bif, .yaml, .json)")
	fs.StringVar(&query, "query", "", "comma-separated query variables")
	fs.StringVar(&evidence, "evidence", "", "comma-separated var=state observations")
	fs.StringVar(&heuristic, "heuristic", config.DefaultHeuristic(), "elimination heuristic: min-fill, min-degree, min-weight, declaration")
	fs.BoolVar(&opts.all, "all", false, "print the marginal of every variable")
	fs.BoolVar(&opts.asJSON, "json", false, "print results as JSON")
	fs.StringVar(&out, "convert", "", "write the network in another format (bif, yaml, json) and exit")
	fs.BoolVar(&opts.order, "order", false, "print the elimination order instead of running the query")
	fs.DurationVar(&opts.timeout, "timeout", config.QueryTimeout(), "abort inference after this long")
	fs.BoolVar(&opts.verbose, "v", false, "verbose logging")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.version {
		return &opts, nil
	}
	if opts.net == "" {
		return nil, errors.New("-net is required")
	}

	h, err := inference.ParseHeuristic(heuristic)
	if err != nil {
		return nil, err
	}
	opts.heuristic = h
	opts.convert = out

	for _, name := range strings.Split(query, ",") {
		if name = strings.TrimSpace(name); name != "" {
			opts.query = append(opts.query, name)
		}
	}
	opts.evidence = map[string]string{}
	for _, pair := range strings.Split(evidence, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		name, state, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("evidence %q is not var=state", pair)
		}
		opts.evidence[strings.TrimSpace(name)] = strings.TrimSpace(state)
	}

	if opts.convert == "" && !opts.all && len(opts.query) == 0 {
		return nil, errors.New("one of -query, -all or -convert is required")
	}
	return &opts, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopmentConfig().Build()
	}
	lvl, err := zap.ParseAtomicLevel(config.LogLevel())
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

func run(opts *options, stdout io.Writer, logger *zap.Logger) error {
	if opts.version {
		_, err := fmt.Fprintln(stdout, buildconfig.VersionInfo())
		return err
	}

	start := time.Now()
	def, format, err := loader.LoadFile(opts.net)
	if err != nil {
		return err
	}

	if opts.convert != "" {
		target, err := loader.ParseFormat(opts.convert)
		if err != nil {
			return err
		}
		data, err := loader.Encode(target, def)
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err
	}

	net, err := network.New(def)
	if err != nil {
		return err
	}
	logger.Info("network loaded",
		zap.String("path", opts.net),
		zap.String("format", string(format)),
		zap.Int("variables", net.Len()),
		zap.Duration("duration", time.Since(start)))

	engine := inference.New(net,
		inference.WithHeuristic(opts.heuristic),
		inference.WithObserver(func(s inference.Step) {
			logger.Debug("elimination step",
				zap.String("variable", s.Variable),
				zap.Int("factors", s.Factors),
				zap.Int("size", s.Size))
		}))

	if opts.order {
		order, err := engine.EliminationOrder(opts.query, opts.evidence)
		if err != nil {
			return err
		}
		return printOrder(stdout, opts, order)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	start = time.Now()
	var results []*inference.Result
	if opts.all {
		results, err = engine.Marginals(ctx, nil, opts.evidence, config.InferenceWorkers())
	} else {
		var res *inference.Result
		res, err = engine.Query(ctx, opts.query, opts.evidence)
		results = []*inference.Result{res}
	}
	if err != nil {
		return err
	}
	logger.Info("inference done",
		zap.Int("results", len(results)),
		zap.String("heuristic", opts.heuristic.String()),
		zap.Duration("duration", time.Since(start)))

	if opts.asJSON {
		return printJSON(stdout, results)
	}
	return printText(stdout, results)
}

func printOrder(w io.Writer, opts *options, order []string) error {
	if opts.asJSON {
		return json.NewEncoder(w).Encode(map[string]any{
			"heuristic": opts.heuristic.String(),
			"order":     order,
		})
	}
	_, err := fmt.Fprintf(w, "%s: %s\n", opts.heuristic, strings.Join(order, " "))
	return err
}

type jsonResult struct {
	Variables []string          `json:"variables"`
	Evidence  map[string]string `json:"evidence,omitempty"`
	Rows      []inference.Row   `json:"rows"`
}

func printJSON(w io.Writer, results []*inference.Result) error {
	out := make([]jsonResult, len(results))
	for i, res := range results {
		out[i] = jsonResult{Variables: res.Names(), Evidence: res.Evidence(), Rows: res.Rows()}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// printText writes one "P(X = s, Y = t | E = e) = p" line per row, with a
// blank line between results.
func printText(w io.Writer, results []*inference.Result) error {
	for i, res := range results {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		given := conditioning(res.Evidence())
		names := res.Names()
		for _, row := range res.Rows() {
			terms := make([]string, len(names))
			for j, name := range names {
				terms[j] = name + " = " + row.States[j]
			}
			if _, err := fmt.Fprintf(w, "P(%s%s) = %.6f\n", strings.Join(terms, ", "), given, row.Probability); err != nil {
				return err
			}
		}
	}
	return nil
}

func conditioning(evidence map[string]string) string {
	if len(evidence) == 0 {
		return ""
	}
	terms := make([]string, 0, len(evidence))
	for _, name := range slices.Sorted(maps.Keys(evidence)) {
		terms = append(terms, name+" = "+evidence[name])
	}
	return " | " + strings.Join(terms, ", ")
}
