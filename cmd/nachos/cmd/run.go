package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sarchlab/nachosim/kernel"
)

var runCmd = &cobra.Command{
	Use:   "run <program>",
	Short: "Run a user program.",
	Long: "`run <program>` loads the program into a new address space and " +
		"runs it until the machine halts. Programs are the built-in demos, " +
		"or executables written by `mknoff` when --dir is given.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := readOptions(cmd)
		if err != nil {
			return err
		}

		dir, _ := cmd.Flags().GetString("dir")

		s, err := runProgram(o, dir, args[0], cmd.OutOrStdout())
		if err != nil {
			return err
		}

		s.hold()

		return nil
	},
}

var programsCmd = &cobra.Command{
	Use:   "programs",
	Short: "List the built-in user programs.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		listPrograms(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(programsCmd)

	runCmd.Flags().String("dir", "",
		"Load executables from this directory instead of the built-in images.")
}

// runProgram boots a machine and runs one program on it. The console and
// the statistics go to out.
func runProgram(o options, dir, name string, out io.Writer) (*session, error) {
	b := o.builder(out).
		WithLoader(newLoader(dir)).
		WithConsole(out)

	s := newSession(o, b, out)

	err := s.run(func(k *kernel.Kernel) error {
		return k.RunProgram(name)
	})

	return s, err
}

// newLoader loads the built-in images, or the files of dir if it is set.
func newLoader(dir string) kernel.Loader {
	if dir != "" {
		return kernel.DirLoader{
			Dir:      dir,
			Programs: kernel.DemoPrograms(),
		}
	}

	l := kernel.NewMemLoader()
	kernel.RegisterDemos(l)

	return l
}

func listPrograms(w io.Writer) {
	demos := kernel.Demos()

	for _, name := range kernel.DemoNames() {
		fmt.Fprintf(w, "%-8s %s\n", name, demos[name].Description)
	}
}
