package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sarchlab/nachosim/kernel"
	"github.com/sarchlab/nachosim/mem/vm"
	"github.com/sarchlab/nachosim/mem/vm/tlb"
)

// envVars maps flags to the environment variables that set their defaults.
var envVars = map[string]string{
	"phys-pages":   "NACHOS_PHYS_PAGES",
	"page-size":    "NACHOS_PAGE_SIZE",
	"tlb-size":     "NACHOS_TLB_SIZE",
	"tlb-policy":   "NACHOS_TLB_POLICY",
	"page-table":   "NACHOS_PAGE_TABLE",
	"stack-size":   "NACHOS_STACK_SIZE",
	"debug":        "NACHOS_DEBUG",
	"rs":           "NACHOS_RANDOM_SEED",
	"stats":        "NACHOS_STATS",
	"trace":        "NACHOS_TRACE",
	"trace-db":     "NACHOS_TRACE_DB",
	"monitor":      "NACHOS_MONITOR",
	"monitor-port": "NACHOS_MONITOR_PORT",
}

func init() {
	addMachineFlags(rootCmd.PersistentFlags())
}

// addMachineFlags defines the flags shared by all the commands that boot a
// machine.
func addMachineFlags(f *pflag.FlagSet) {
	f.String("env", ".env", "The file to read NACHOS_* defaults from.")
	f.Int("phys-pages", kernel.DefaultNumPhysPages,
		"The number of physical page frames.")
	f.Int("page-size", kernel.DefaultPageSize, "The page size in bytes.")
	f.Int("tlb-size", kernel.DefaultTLBSize, "The number of TLB entries.")
	f.String("tlb-policy", "fifo",
		"The TLB replacement policy, fifo or lru.")
	f.String("page-table", "flat",
		"The page table layout, flat or inverted.")
	f.Int("stack-size", kernel.DefaultUserStackSize,
		"The user stack size in bytes.")
	f.StringP("debug", "d", "",
		"Debug flags: t threads, i interrupts, a address spaces, "+
			"v virtual memory, e exceptions, + all.")
	f.Int64("rs", 0,
		"Preempt threads at random intervals drawn from this seed. "+
			"Zero disables time slicing.")
	f.Bool("stats", false, "Print the statistics when the machine halts.")
	f.Bool("trace", false, "Record a trace of the run into SQLite.")
	f.String("trace-db", "",
		"The trace database name. A unique name is generated if empty.")
	f.Bool("monitor", false, "Serve the state of the kernel over HTTP.")
	f.Int("monitor-port", 0,
		"The port of the monitor. A random port is used if 0.")
	f.Bool("open-browser", false, "Open the monitor in a browser.")
}

// applyEnv loads the env file and uses the NACHOS_* variables for the flags
// that are not given on the command line.
func applyEnv(cmd *cobra.Command) error {
	flags := cmd.Flags()

	envFile, _ := flags.GetString("env")

	err := godotenv.Load(envFile)
	if err != nil && (flags.Changed("env") || !errors.Is(err, fs.ErrNotExist)) {
		return err
	}

	names := make([]string, 0, len(envVars))
	for name := range envVars {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if flags.Lookup(name) == nil || flags.Changed(name) {
			continue
		}

		value, found := os.LookupEnv(envVars[name])
		if !found {
			continue
		}

		err := flags.Set(name, value)
		if err != nil {
			return fmt.Errorf("%s: %w", envVars[name], err)
		}
	}

	return nil
}

// options is the machine configuration of a command.
type options struct {
	physPages   int
	pageSize    int
	tlbSize     int
	stackSize   int
	policy      tlb.Policy
	layout      vm.Layout
	debug       string
	seed        int64
	stats       bool
	trace       bool
	traceDB     string
	monitor     bool
	monitorPort int
	openBrowser bool
}

func readOptions(cmd *cobra.Command) (options, error) {
	flags := cmd.Flags()

	var o options

	o.physPages, _ = flags.GetInt("phys-pages")
	o.pageSize, _ = flags.GetInt("page-size")
	o.tlbSize, _ = flags.GetInt("tlb-size")
	o.stackSize, _ = flags.GetInt("stack-size")
	o.debug, _ = flags.GetString("debug")
	o.seed, _ = flags.GetInt64("rs")
	o.stats, _ = flags.GetBool("stats")
	o.trace, _ = flags.GetBool("trace")
	o.traceDB, _ = flags.GetString("trace-db")
	o.monitor, _ = flags.GetBool("monitor")
	o.monitorPort, _ = flags.GetInt("monitor-port")
	o.openBrowser, _ = flags.GetBool("open-browser")

	policy, _ := flags.GetString("tlb-policy")

	var err error

	o.policy, err = tlb.ParsePolicy(policy)
	if err != nil {
		return o, err
	}

	layout, _ := flags.GetString("page-table")

	o.layout, err = vm.ParseLayout(layout)
	if err != nil {
		return o, err
	}

	if o.physPages <= 0 || o.pageSize <= 0 || o.tlbSize <= 0 {
		return o, errors.New(
			"phys-pages, page-size and tlb-size must be positive")
	}

	return o, nil
}

// builder turns the options into a kernel builder. Statistics go to out.
func (o options) builder(out io.Writer) kernel.Builder {
	b := kernel.MakeBuilder().
		WithNumPhysPages(o.physPages).
		WithPageSize(o.pageSize).
		WithTLBSize(o.tlbSize).
		WithTLBPolicy(o.policy).
		WithLayout(o.layout).
		WithUserStackSize(o.stackSize).
		WithDebugFlags(o.debug)

	if o.seed != 0 {
		b = b.WithRandomSlice(o.seed)
	}

	if o.stats {
		b = b.WithStatsOutput(out)
	}

	return b
}

// settings lists the options the way they are stored with a trace.
func (o options) settings() map[string]string {
	return map[string]string{
		"phys_pages": strconv.Itoa(o.physPages),
		"page_size":  strconv.Itoa(o.pageSize),
		"tlb_size":   strconv.Itoa(o.tlbSize),
		"tlb_policy": o.policy.String(),
		"page_table": o.layout.String(),
		"stack_size": strconv.Itoa(o.stackSize),
		"seed":       strconv.FormatInt(o.seed, 10),
	}
}
