package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/beamsim/internal/analysis"
	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/config"
	"github.com/san-kum/beamsim/internal/correct"
	"github.com/san-kum/beamsim/internal/lattice"
	"github.com/san-kum/beamsim/internal/latio"
	"github.com/san-kum/beamsim/internal/linalg"
	"github.com/san-kum/beamsim/internal/scan"
	"github.com/san-kum/beamsim/internal/storage"
	"github.com/san-kum/beamsim/internal/track"
	"github.com/san-kum/beamsim/internal/tui"
	"github.com/san-kum/beamsim/internal/viz"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

var (
	cfgPath   string
	storePath string
	dataDir   string

	runFrom     int
	runTo       int
	runObserve  string
	runIndices  []int
	runValidate bool
	runEnergy   float64
	runNoStore  bool
	runPreset   string

	plotPlane string
	plotW     int
	plotH     int

	ellipsePlane string
	ellipseAt    int

	orbitSVG string

	elemKind string

	setOut string

	genOut    string
	genFrom   int
	genTo     int
	genSource bool
	genAt     int
	genPlain  bool

	scanElement string
	scanKey     string
	scanMin     float64
	scanMax     float64
	scanPoints  int
	scanMetric  string
	scanWorkers int

	steerTrim  string
	steerMark  string
	steerIter  int
	steerTol   float64
	steerApply bool
	steerOut   string

	exportOut string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "beamsim",
		Short: "Moment-space beam envelope simulator",
		Long: `beamsim tracks ion beam envelopes through accelerator lattices:
centroid vectors, correlation matrices and the reference-particle energy
are propagated per charge state, element by element.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", config.DefaultStore, "run database path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "cavity data directory (overrides the lattice setting)")

	runCmd := &cobra.Command{
		Use:   "run [lattice.lat]",
		Short: "Track a beam through a lattice and store the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLattice,
	}
	runCmd.Flags().IntVar(&runFrom, "from", 0, "first element index")
	runCmd.Flags().IntVar(&runTo, "to", 0, "stop before this index (0 runs to the end)")
	runCmd.Flags().StringVar(&runObserve, "observe", config.DefaultObserve, "observation mode: all, last or indices")
	runCmd.Flags().IntSliceVar(&runIndices, "indices", nil, "element indices to observe (implies --observe indices)")
	runCmd.Flags().BoolVar(&runValidate, "validate", false, "check moments for NaN after every element")
	runCmd.Flags().Float64Var(&runEnergy, "energy", 0, "initial kinetic energy in eV/u (overrides the lattice)")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "skip saving the run")
	runCmd.Flags().StringVar(&runPreset, "preset", "", "config preset: "+strings.Join(config.ListPresets(), ", "))

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "Show a stored run and its snapshots",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "Plot envelope and energy profiles of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&plotPlane, "plane", "x", "transverse plane: x, y or z")
	plotCmd.Flags().IntVar(&plotW, "width", 80, "chart width in characters")
	plotCmd.Flags().IntVar(&plotH, "height", 10, "chart height in characters")

	orbitCmd := &cobra.Command{
		Use:   "orbit [run_id]",
		Short: "Plot centroid orbits of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  orbitRun,
	}
	orbitCmd.Flags().IntVar(&plotW, "width", 80, "chart width in characters")
	orbitCmd.Flags().IntVar(&plotH, "height", 10, "chart height in characters")
	orbitCmd.Flags().StringVar(&orbitSVG, "svg", "", "also write the horizontal orbit as an SVG file")

	ellipseCmd := &cobra.Command{
		Use:   "ellipse [run_id]",
		Short: "Draw the phase-space ellipse at a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  ellipseRun,
	}
	ellipseCmd.Flags().StringVar(&ellipsePlane, "plane", "x", "phase plane: x, y or z")
	ellipseCmd.Flags().IntVar(&ellipseAt, "at", -1, "snapshot index (-1 uses the last one)")
	ellipseCmd.Flags().IntVar(&plotW, "width", 80, "chart width in characters")
	ellipseCmd.Flags().IntVar(&plotH, "height", 14, "chart height in characters")

	inspectCmd := &cobra.Command{
		Use:   "inspect [lattice.lat]",
		Short: "Summarize a lattice file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  inspectLattice,
	}

	elementsCmd := &cobra.Command{
		Use:   "elements [lattice.lat]",
		Short: "List lattice elements with positions",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listElements,
	}
	elementsCmd.Flags().StringVar(&elemKind, "kind", "", "only show elements of this kind")

	setCmd := &cobra.Command{
		Use:   "set [lattice.lat] [element] [key=value...]",
		Short: "Change element parameters and rewrite the lattice file",
		Args:  cobra.MinimumNArgs(3),
		RunE:  setParams,
	}
	setCmd.Flags().StringVar(&setOut, "out", "", "output file (defaults to rewriting the input)")

	latgenCmd := &cobra.Command{
		Use:   "latgen [lattice.lat]",
		Short: "Regenerate lattice source text",
		Args:  cobra.MaximumNArgs(1),
		RunE:  generateLattice,
	}
	latgenCmd.Flags().StringVar(&genOut, "out", "", "output file (defaults to stdout)")
	latgenCmd.Flags().IntVar(&genFrom, "from", 0, "first element index of a sub-line")
	latgenCmd.Flags().IntVar(&genTo, "to", -1, "stop before this index (-1 runs to the end)")
	latgenCmd.Flags().BoolVar(&genSource, "source", false, "emit a source block for the tracked beam state")
	latgenCmd.Flags().IntVar(&genAt, "at", 0, "track to this element index before emitting the source block")
	latgenCmd.Flags().BoolVar(&genPlain, "plain", false, "regenerate from scratch instead of preserving the original formatting")

	scanCmd := &cobra.Command{
		Use:   "scan [lattice.lat]",
		Short: "Sweep an element parameter and evaluate a metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  scanLattice,
	}
	scanCmd.Flags().StringVar(&scanElement, "element", "", "element name to vary")
	scanCmd.Flags().StringVar(&scanKey, "key", "", "parameter key to vary")
	scanCmd.Flags().Float64Var(&scanMin, "min", 0, "first parameter value")
	scanCmd.Flags().Float64Var(&scanMax, "max", 0, "last parameter value")
	scanCmd.Flags().IntVar(&scanPoints, "points", config.DefaultScanPoints, "number of scan points")
	scanCmd.Flags().StringVar(&scanMetric, "metric", "max_envelope_x", "metric to evaluate per point")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "concurrent workers (0 uses all CPUs)")

	steerCmd := &cobra.Command{
		Use:   "steer [lattice.lat]",
		Short: "Fit corrector kicks that zero the centroid at a marker",
		Args:  cobra.MaximumNArgs(1),
		RunE:  steerLattice,
	}
	steerCmd.Flags().StringVar(&steerTrim, "trim", "", "orbit corrector element name")
	steerCmd.Flags().StringVar(&steerMark, "marker", "", "downstream element the centroid is zeroed at")
	steerCmd.Flags().IntVar(&steerIter, "max-iter", config.DefaultSteerIter, "iteration limit")
	steerCmd.Flags().Float64Var(&steerTol, "tol", config.DefaultSteerTol, "centroid tolerance in mm")
	steerCmd.Flags().BoolVar(&steerApply, "apply", false, "write the fitted kicks back to the lattice file")
	steerCmd.Flags().StringVar(&steerOut, "out", "", "output file for --apply (defaults to rewriting the input)")

	liveCmd := &cobra.Command{
		Use:   "live [lattice.lat]",
		Short: "Step through a lattice interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "Export run snapshots as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVar(&exportOut, "out", "", "output file (defaults to stdout)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "Export a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVar(&exportOut, "out", "", "output file (defaults to stdout)")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Time envelope tracking over synthetic FODO lines",
		Args:  cobra.NoArgs,
		RunE:  runBench,
	}

	rootCmd.AddCommand(runCmd, listCmd, showCmd, plotCmd, orbitCmd, ellipseCmd,
		inspectCmd, elementsCmd, setCmd, latgenCmd, scanCmd, steerCmd, liveCmd,
		exportCSVCmd, exportJSONCmd, benchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runLattice(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runPreset != "" {
		p := config.GetPreset(runPreset)
		if p == nil {
			return fmt.Errorf("unknown preset %q (presets: %s)", runPreset, strings.Join(config.ListPresets(), ", "))
		}
		cfg = p
	}
	if !cmd.Flags().Changed("from") {
		runFrom = cfg.Run.From
	}
	if !cmd.Flags().Changed("to") {
		runTo = cfg.Run.To
	}
	if !cmd.Flags().Changed("observe") {
		runObserve = cfg.Run.Observe
	}
	if len(runIndices) == 0 {
		runIndices = cfg.Run.Indices
	}
	if !cmd.Flags().Changed("validate") {
		runValidate = cfg.Run.Validate
	}
	if cmd.Flags().Changed("energy") {
		cfg.Beam.Energy = runEnergy
	}

	path := cfg.Lattice
	if len(args) == 1 {
		path = args[0]
	}
	lat, _, err := loadLattice(path, cfg)
	if err != nil {
		return err
	}

	mode, err := parseObserve(runObserve, runIndices)
	if err != nil {
		return err
	}

	fmt.Printf("tracking %s (%d elements)...\n", path, lat.Len())
	start := time.Now()
	res, err := track.Run(context.Background(), lat, track.Options{
		From:     runFrom,
		To:       runTo,
		Observe:  mode,
		Indices:  runIndices,
		Validate: runValidate,
	})
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	for _, w := range res.Warnings {
		logger.Warn("propagation warning", "index", w.Index, "element", w.Element, "msg", w.Message)
	}

	final := res.Final
	m0 := final.Moment0Env()
	rms := final.Moment0RMS()
	fmt.Printf("completed %d elements in %v\n", res.Steps, elapsed.Round(time.Microsecond))
	fmt.Printf("  s     = %.4f m\n", final.Pos)
	fmt.Printf("  Ek    = %.4f MeV/u\n", final.Ref.IonEk/1e6)
	fmt.Printf("  phase = %.4f rad\n", final.Ref.Phis)
	fmt.Printf("  x     = %+.4f mm (rms %.4f)\n", m0[beam.IndexX], rms[beam.IndexX])
	fmt.Printf("  y     = %+.4f mm (rms %.4f)\n", m0[beam.IndexY], rms[beam.IndexY])

	if len(res.History) > 1 {
		vals := analysis.Apply(res.History,
			analysis.NewMaxEnvelope(analysis.Horizontal),
			analysis.NewMaxEnvelope(analysis.Vertical),
			analysis.NewEnergyGain(),
			analysis.NewCentroidDrift(analysis.Horizontal),
			analysis.NewCentroidDrift(analysis.Vertical),
		)
		names := make([]string, 0, len(vals))
		for name := range vals {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "METRIC\tVALUE")
		for _, name := range names {
			fmt.Fprintf(w, "%s\t%.6g\n", name, vals[name])
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if runNoStore {
		return nil
	}
	st, err := storage.Open(storePath)
	if err != nil {
		return err
	}
	defer st.Close()
	id, err := st.SaveRun(filepath.Base(path), runFrom, runTo, res)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", id)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := storage.Open(storePath)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLATTICE\tCREATED\tRANGE\tSTEPS\tS\tENERGY\tWARN")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t[%d,%d)\t%d\t%.3f m\t%.3f MeV/u\t%d\n",
			r.ID, r.Lattice, r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.From, r.To, r.Steps, r.FinalPos, r.FinalEk/1e6, r.Warnings)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	run, recs, err := loadHistory(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run %s\n", run.ID)
	fmt.Printf("  lattice:  %s\n", run.Lattice)
	fmt.Printf("  created:  %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  range:    [%d,%d)\n", run.From, run.To)
	fmt.Printf("  steps:    %d\n", run.Steps)
	fmt.Printf("  warnings: %d\n", run.Warnings)
	fmt.Printf("  final:    s=%.4f m  Ek=%.4f MeV/u  phase=%.4f rad\n",
		run.FinalPos, run.FinalEk/1e6, run.FinalPhis)
	if len(recs) == 0 {
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tS\tENERGY\tX\tY\tRMS X\tRMS Y")
	for _, rec := range recs {
		m0 := rec.State.Moment0Env()
		rms := rec.State.Moment0RMS()
		fmt.Fprintf(w, "%d\t%s\t%.4f\t%.4f\t%+.4f\t%+.4f\t%.4f\t%.4f\n",
			rec.Index, rec.Name, rec.Pos, rec.State.Ref.IonEk/1e6,
			m0[beam.IndexX], m0[beam.IndexY], rms[beam.IndexX], rms[beam.IndexY])
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	_, recs, err := loadHistory(args[0])
	if err != nil {
		return err
	}
	if len(recs) < 2 {
		return fmt.Errorf("run has %d snapshot(s); re-run with --observe all", len(recs))
	}
	p, err := parsePlane(plotPlane)
	if err != nil {
		return err
	}
	fmt.Println(viz.Plot(viz.EnvelopeSeries(recs, p), fmt.Sprintf("rms %s envelope [mm]", p), plotW, plotH))
	fmt.Println()
	fmt.Println(viz.Plot(viz.EnergySeries(recs), "kinetic energy [eV/u]", plotW, plotH))
	return nil
}

func orbitRun(cmd *cobra.Command, args []string) error {
	_, recs, err := loadHistory(args[0])
	if err != nil {
		return err
	}
	if len(recs) < 2 {
		return fmt.Errorf("run has %d snapshot(s); re-run with --observe all", len(recs))
	}
	xs := viz.OrbitSeries(recs, analysis.Horizontal)
	ys := viz.OrbitSeries(recs, analysis.Vertical)
	fmt.Println(viz.Plot(xs, "x centroid [mm]", plotW, plotH))
	fmt.Println()
	fmt.Println(viz.Plot(ys, "y centroid [mm]", plotW, plotH))

	if orbitSVG == "" {
		return nil
	}
	pos := viz.PositionSeries(recs)
	pts := make([]storage.XY, len(recs))
	for i := range recs {
		pts[i] = storage.XY{X: pos[i], Y: xs[i]}
	}
	svg := storage.TrajectorySVG(pts, 800, 400, "#00ff88")
	if err := os.WriteFile(orbitSVG, []byte(svg), 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", orbitSVG)
	return nil
}

func ellipseRun(cmd *cobra.Command, args []string) error {
	_, recs, err := loadHistory(args[0])
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("run has no snapshots; re-run with --observe all")
	}
	at := ellipseAt
	if at < 0 || at >= len(recs) {
		at = len(recs) - 1
	}
	p, err := parsePlane(ellipsePlane)
	if err != nil {
		return err
	}
	rec := recs[at]
	tw, err := analysis.Extract(rec.State.Moment1Env(), p)
	if err != nil {
		return fmt.Errorf("%s plane at %s: %w", p, rec.Name, err)
	}

	fmt.Printf("%s phase ellipse at %s (s=%.4f m)\n", p, rec.Name, rec.Pos)
	fmt.Printf("  alpha     = %+.4f\n", tw.Alpha)
	fmt.Printf("  beta      = %.4f mm/rad\n", tw.Beta)
	fmt.Printf("  gamma     = %.4f rad/mm\n", tw.Gamma)
	fmt.Printf("  emittance = %.6f mm-rad\n", tw.Emittance)
	fmt.Println()
	fmt.Println(viz.PhaseEllipse(tw, plotW/2, plotH))
	return nil
}

func inspectLattice(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Lattice
	if len(args) == 1 {
		path = args[0]
	}
	lat, _, err := loadLattice(path, cfg)
	if err != nil {
		return err
	}

	rep := lat.InspectReport()
	fmt.Println(path)
	fmt.Printf("  elements:      %d\n", rep.Elements)
	fmt.Printf("  length:        %.4f m\n", rep.Length)
	fmt.Printf("  ion Es:        %.1f eV/u\n", lat.IonEs)
	fmt.Printf("  ion Ek:        %.1f eV/u\n", lat.IonEk)
	fmt.Printf("  charge states: %v\n", lat.IonZs)
	fmt.Printf("  weights:       %v\n", lat.NCharge)
	fmt.Printf("  sample freq:   %.0f Hz\n", lat.SampleFreq)
	fmt.Printf("  mpole level:   %d\n", lat.MpoleLevel)
	if lat.DataDir != "" {
		fmt.Printf("  data dir:      %s\n", lat.DataDir)
	}

	kinds := make([]lattice.Kind, 0, len(rep.Kinds))
	for k := range rep.Kinds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tCOUNT")
	for _, k := range kinds {
		fmt.Fprintf(w, "%s\t%d\n", k, rep.Kinds[k])
	}
	return w.Flush()
}

func listElements(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Lattice
	if len(args) == 1 {
		path = args[0]
	}
	lat, _, err := loadLattice(path, cfg)
	if err != nil {
		return err
	}

	var filter lattice.Kind
	filtered := false
	if elemKind != "" {
		k, ok := lattice.ParseKind(elemKind)
		if !ok {
			return fmt.Errorf("unknown element kind %q", elemKind)
		}
		filter, filtered = k, true
	}

	pos := lat.Positions()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tTYPE\tL\tS")
	for i, e := range lat.Elements {
		if filtered && e.Kind != filter {
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.4f\t%.4f\n", i, e.Name, e.Kind, e.Length(), pos[i])
	}
	return w.Flush()
}

func setParams(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path, name := args[0], args[1]
	lat, src, err := loadLattice(path, cfg)
	if err != nil {
		return err
	}

	changes := make(map[string]lattice.Value, len(args)-2)
	for _, kv := range args[2:] {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("bad assignment %q (want key=value)", kv)
		}
		changes[key] = parseValue(raw)
	}
	if err := lat.Reconfigure(name, changes); err != nil {
		return err
	}

	out, err := latio.GenerateFrom(lat, src)
	if err != nil {
		return err
	}
	dst := setOut
	if dst == "" {
		dst = path
	}
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		return err
	}
	fmt.Printf("updated %s; wrote %s\n", name, dst)
	return nil
}

func generateLattice(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Lattice
	if len(args) == 1 {
		path = args[0]
	}
	lat, src, err := loadLattice(path, cfg)
	if err != nil {
		return err
	}

	var out []byte
	switch {
	case genSource:
		s, err := sourceState(lat, genAt)
		if err != nil {
			return err
		}
		out = latio.GenerateSource(s)
	case cmd.Flags().Changed("from") || cmd.Flags().Changed("to"):
		out, err = latio.GenerateRange(lat, genFrom, genTo)
		if err != nil {
			return err
		}
	case genPlain:
		out = latio.Generate(lat)
	default:
		out, err = latio.GenerateFrom(lat, src)
		if err != nil {
			return err
		}
	}

	if genOut == "" {
		_, err := os.Stdout.Write(out)
		return err
	}
	if err := os.WriteFile(genOut, out, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", genOut)
	return nil
}

func sourceState(lat *lattice.Lattice, at int) (*beam.State, error) {
	if at <= 0 {
		return track.InitialState(lat)
	}
	res, err := track.Run(context.Background(), lat, track.Options{To: at})
	if err != nil {
		return nil, err
	}
	return res.Final, nil
}

func scanLattice(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("element") {
		scanElement = cfg.Scan.Element
	}
	if !cmd.Flags().Changed("key") {
		scanKey = cfg.Scan.Key
	}
	if !cmd.Flags().Changed("min") {
		scanMin = cfg.Scan.Min
	}
	if !cmd.Flags().Changed("max") {
		scanMax = cfg.Scan.Max
	}
	if !cmd.Flags().Changed("points") && cfg.Scan.Points > 0 {
		scanPoints = cfg.Scan.Points
	}
	if !cmd.Flags().Changed("metric") && cfg.Scan.Metric != "" {
		scanMetric = cfg.Scan.Metric
	}
	if scanElement == "" || scanKey == "" {
		return fmt.Errorf("scan needs --element and --key")
	}

	path := cfg.Lattice
	if len(args) == 1 {
		path = args[0]
	}
	lat, _, err := loadLattice(path, cfg)
	if err != nil {
		return err
	}

	eval, err := metricEval(scanMetric)
	if err != nil {
		return err
	}

	grid := scan.Grid{
		Params:  []scan.Param{scan.Axis(scanElement, scanKey, scanMin, scanMax, scanPoints)},
		Options: track.Options{Observe: track.ObserveAll},
		Workers: scanWorkers,
	}
	fmt.Printf("scanning %s.%s over [%g, %g] in %d points...\n", scanElement, scanKey, scanMin, scanMax, scanPoints)
	start := time.Now()
	res, err := grid.Run(context.Background(), lat, eval)
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n", time.Since(start).Round(time.Millisecond))
	fmt.Println()

	best := res.Best()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t\n", strings.ToUpper(scanKey), strings.ToUpper(scanMetric))
	var vals []float64
	for i, pt := range res.Points {
		if pt.Err != nil {
			fmt.Fprintf(w, "%.6g\tfailed: %v\t\n", pt.Values[0], pt.Err)
			continue
		}
		mark := ""
		if i == best {
			mark = "*"
		}
		fmt.Fprintf(w, "%.6g\t%.6g\t%s\n", pt.Values[0], pt.Metric, mark)
		vals = append(vals, pt.Metric)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if best >= 0 {
		fmt.Printf("best: %s=%.6g  %s=%.6g\n", scanKey, res.Points[best].Values[0], scanMetric, res.Points[best].Metric)
	}
	if len(vals) >= 2 {
		fmt.Println()
		fmt.Println(viz.Plot(vals, scanMetric+" vs "+scanKey, 70, 10))
	}
	return nil
}

func steerLattice(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("trim") {
		steerTrim = cfg.Steer.Trim
	}
	if !cmd.Flags().Changed("marker") {
		steerMark = cfg.Steer.Marker
	}
	if !cmd.Flags().Changed("max-iter") && cfg.Steer.MaxIter > 0 {
		steerIter = cfg.Steer.MaxIter
	}
	if !cmd.Flags().Changed("tol") && cfg.Steer.Tol > 0 {
		steerTol = cfg.Steer.Tol
	}
	if steerTrim == "" || steerMark == "" {
		return fmt.Errorf("steer needs --trim and --marker")
	}

	path := cfg.Lattice
	if len(args) == 1 {
		path = args[0]
	}
	lat, src, err := loadLattice(path, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("steering %s to zero the centroid at %s...\n", steerTrim, steerMark)
	kick, err := correct.Steer(context.Background(), lat, correct.Config{
		Trim:    steerTrim,
		Marker:  steerMark,
		MaxIter: steerIter,
		Tol:     steerTol,
	})
	if err != nil {
		return err
	}
	fmt.Printf("converged in %d iteration(s)\n", kick.Iterations)
	fmt.Printf("  theta_x  = %+.6g rad\n", kick.ThetaX)
	fmt.Printf("  theta_y  = %+.6g rad\n", kick.ThetaY)
	fmt.Printf("  residual = %.6g mm\n", kick.Residual)

	if !steerApply {
		return nil
	}
	err = lat.Reconfigure(steerTrim, map[string]lattice.Value{
		"theta_x": kick.ThetaX,
		"theta_y": kick.ThetaY,
	})
	if err != nil {
		return err
	}
	out, err := latio.GenerateFrom(lat, src)
	if err != nil {
		return err
	}
	dst := steerOut
	if dst == "" {
		dst = path
	}
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", dst)
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Lattice
	if len(args) == 1 {
		path = args[0]
	}
	lat, _, err := loadLattice(path, cfg)
	if err != nil {
		return err
	}
	return tui.Run(lat, filepath.Base(path))
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, recs, err := loadHistory(args[0])
	if err != nil {
		return err
	}
	if exportOut == "" {
		return storage.WriteCSV(os.Stdout, recs)
	}
	if err := storage.ExportCSV(exportOut, recs); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d rows)\n", exportOut, len(recs))
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	run, recs, err := loadHistory(args[0])
	if err != nil {
		return err
	}
	res := &track.Result{History: recs, Steps: run.Steps}
	if len(recs) > 0 {
		res.Final = recs[len(recs)-1].State
	}
	if exportOut == "" {
		return storage.WriteJSON(os.Stdout, run.Lattice, run.From, run.To, res)
	}
	if err := storage.ExportJSON(exportOut, run.Lattice, run.From, run.To, res); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", exportOut)
	return nil
}

func runBench(cmd *cobra.Command, args []string) error {
	const reps = 5
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CELLS\tELEMENTS\tRUNS\tTOTAL\tELEM/SEC")
	for _, cells := range []int{10, 50, 200} {
		lat, err := benchLattice(cells)
		if err != nil {
			return err
		}
		start := time.Now()
		steps := 0
		for r := 0; r < reps; r++ {
			res, err := track.Run(context.Background(), lat, track.Options{})
			if err != nil {
				return err
			}
			steps += res.Steps
		}
		elapsed := time.Since(start)
		fmt.Fprintf(w, "%d\t%d\t%d\t%v\t%.0f\n",
			cells, lat.Len(), reps, elapsed.Round(time.Microsecond), float64(steps)/elapsed.Seconds())
	}
	return w.Flush()
}

// benchLattice builds a FODO line with the given cell count and a single
// charge state.
func benchLattice(cells int) (*lattice.Lattice, error) {
	lat := lattice.New()
	lat.Name = fmt.Sprintf("fodo_%d", cells)
	lat.IonEk = 500e3
	lat.IonZs = []float64{0.5}
	lat.NCharge = []float64{1000}
	lat.Moment0 = []linalg.Vec{{0.1, 1e-4, -0.1, 1e-4, 0, 0, 1}}
	lat.Moment1 = []linalg.Mat{linalg.Identity()}

	src, err := lattice.NewElement("S", lattice.KindSource, nil)
	if err != nil {
		return nil, err
	}
	lat.Elements = append(lat.Elements, src)
	for i := 0; i < cells; i++ {
		cell := []struct {
			name  string
			kind  lattice.Kind
			props map[string]lattice.Value
		}{
			{fmt.Sprintf("QF%d", i), lattice.KindQuadrupole, map[string]lattice.Value{"L": 0.25, "B2": 0.9}},
			{fmt.Sprintf("DA%d", i), lattice.KindDrift, map[string]lattice.Value{"L": 0.5}},
			{fmt.Sprintf("QD%d", i), lattice.KindQuadrupole, map[string]lattice.Value{"L": 0.25, "B2": -0.9}},
			{fmt.Sprintf("DB%d", i), lattice.KindDrift, map[string]lattice.Value{"L": 0.5}},
		}
		for _, c := range cell {
			e, err := lattice.NewElement(c.name, c.kind, c.props)
			if err != nil {
				return nil, err
			}
			lat.Elements = append(lat.Elements, e)
		}
	}
	if err := lat.Validate(); err != nil {
		return nil, err
	}
	return lat, nil
}

func loadConfig() (*config.Config, error) {
	if cfgPath == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// loadLattice reads and parses a lattice file, then applies beam overrides
// from the config and resolves the cavity data directory relative to the
// file.
func loadLattice(path string, cfg *config.Config) (*lattice.Lattice, []byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	lat, err := latio.Load(src)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	overridden := false
	if cfg != nil {
		if cfg.Beam.Energy > 0 {
			lat.IonEk = cfg.Beam.Energy
			overridden = true
		}
		if len(cfg.Beam.ChargeStates) > 0 {
			lat.IonZs = cfg.Beam.ChargeStates
			overridden = true
		}
		if len(cfg.Beam.Weights) > 0 {
			lat.NCharge = cfg.Beam.Weights
			overridden = true
		}
	}
	if overridden {
		if err := lat.Validate(); err != nil {
			return nil, nil, err
		}
	}

	dir := filepath.Dir(path)
	switch {
	case dataDir != "":
		lat.DataDir = dataDir
	case cfg != nil && cfg.DataDir != "":
		lat.DataDir = cfg.DataDir
	case lat.DataDir == "":
		lat.DataDir = dir
	case !filepath.IsAbs(lat.DataDir):
		lat.DataDir = filepath.Join(dir, lat.DataDir)
	}
	return lat, src, nil
}

func loadHistory(id string) (*storage.Run, []track.Record, error) {
	st, err := storage.Open(storePath)
	if err != nil {
		return nil, nil, err
	}
	defer st.Close()
	return st.LoadRun(id)
}

func parseObserve(mode string, indices []int) (track.ObserveMode, error) {
	if len(indices) > 0 {
		return track.ObserveIndices, nil
	}
	switch mode {
	case "all":
		return track.ObserveAll, nil
	case "last", "":
		return track.ObserveLast, nil
	case "indices":
		return 0, fmt.Errorf("--observe indices needs --indices")
	}
	return 0, fmt.Errorf("unknown observe mode %q (all, last, indices)", mode)
}

func parsePlane(s string) (analysis.Plane, error) {
	switch s {
	case "x":
		return analysis.Horizontal, nil
	case "y":
		return analysis.Vertical, nil
	case "z":
		return analysis.Longitudinal, nil
	}
	return 0, fmt.Errorf("unknown plane %q (x, y, z)", s)
}

func parseValue(s string) lattice.Value {
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		fields := strings.Split(strings.Trim(s, "[]"), ",")
		vec := make([]float64, 0, len(fields))
		for _, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return s
			}
			vec = append(vec, v)
		}
		return vec
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}

func metricEval(name string) (scan.Eval, error) {
	mk, err := metricByName(name)
	if err != nil {
		return nil, err
	}
	return func(res *track.Result) float64 {
		m := mk()
		for _, rec := range res.History {
			m.Observe(rec)
		}
		return m.Value()
	}, nil
}

func metricByName(name string) (func() analysis.Metric, error) {
	switch name {
	case "max_envelope_x":
		return func() analysis.Metric { return analysis.NewMaxEnvelope(analysis.Horizontal) }, nil
	case "max_envelope_y":
		return func() analysis.Metric { return analysis.NewMaxEnvelope(analysis.Vertical) }, nil
	case "energy_gain":
		return func() analysis.Metric { return analysis.NewEnergyGain() }, nil
	case "centroid_drift_x":
		return func() analysis.Metric { return analysis.NewCentroidDrift(analysis.Horizontal) }, nil
	case "centroid_drift_y":
		return func() analysis.Metric { return analysis.NewCentroidDrift(analysis.Vertical) }, nil
	}
	return nil, fmt.Errorf("unknown metric %q", name)
}
