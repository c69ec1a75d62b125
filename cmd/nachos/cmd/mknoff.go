package cmd

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sarchlab/nachosim/kernel"
)

var mknoffCmd = &cobra.Command{
	Use:   "mknoff <dir>",
	Short: "Write the built-in programs as NOFF executables.",
	Long: "`mknoff <dir>` writes the image of every built-in program into " +
		"dir, one file per program, so that `run --dir` loads them from disk.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bigEndian, _ := cmd.Flags().GetBool("big-endian")

		order := binary.ByteOrder(binary.LittleEndian)
		if bigEndian {
			order = binary.BigEndian
		}

		return writeImages(args[0], order, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(mknoffCmd)

	mknoffCmd.Flags().Bool("big-endian", false,
		"Write the headers in big-endian byte order.")
}

func writeImages(dir string, order binary.ByteOrder, out io.Writer) error {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return err
	}

	demos := kernel.Demos()

	for _, name := range kernel.DemoNames() {
		img := demos[name].Image
		path := filepath.Join(dir, name)

		err := os.WriteFile(path, img.Encode(order), 0o644)
		if err != nil {
			return err
		}

		h := img.Header()
		fmt.Fprintf(out, "%s: code %d, data %d, bss %d bytes\n",
			path, h.Code.Size, h.InitData.Size, h.UninitData.Size)
	}

	return nil
}
