package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/goniometer/internal/utils"
)

var (
	resetDB    bool
	resetFiles bool
	resetYes   bool
)

var resetCmd = &cobra.Command{
	Use:   "reset [work_path]",
	Short: "Reset system state (Database, generated outputs)",
	Long: `Clears stored runs and/or the process/ output directories under work_path.
By default, it resets everything that is configured. Use flags to clear specific components.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetFiles {
			resetDB = cfg.DB != ""
			resetFiles = len(args) == 1
		}
		if resetFiles && len(args) == 0 {
			return fmt.Errorf("--files needs a work_path")
		}

		reader := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()

		if resetDB {
			if err := openStore(cmd.Context(), true); err != nil {
				utils.ShowError("Database unavailable", err, nil)
				return err
			}
			if confirm(out, reader, "⚠️  Are you sure you want to DROP all database tables?") {
				fmt.Fprintln(out, "🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		if resetFiles {
			if confirm(out, reader, fmt.Sprintf("⚠️  Are you sure you want to delete all %s/ outputs under %s?", utils.ProcessDir, args[0])) {
				fmt.Fprintln(out, "🗑️  Clearing Output Files (Annotated Images, Reports)...")
				for _, dir := range outputDirs(args[0]) {
					removeDir(dir)
				}
			}
		}

		fmt.Fprintln(out, "✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db", false, "Clear PostgreSQL database")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Clear generated files (annotated images, reports)")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

// outputDirs lists the process directories under workPath, both for a work
// tree of subjects and for a single subject directory.
func outputDirs(workPath string) []string {
	var dirs []string
	if info, err := os.Stat(filepath.Join(workPath, utils.ProcessDir)); err == nil && info.IsDir() {
		dirs = append(dirs, filepath.Join(workPath, utils.ProcessDir))
	}
	subjects, _ := utils.SubjectDirs(workPath)
	for _, s := range subjects {
		p := filepath.Join(s, utils.ProcessDir)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			dirs = append(dirs, p)
		}
	}
	return dirs
}

func confirm(out io.Writer, r *bufio.Reader, prompt string) bool {
	if resetYes {
		return true
	}
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
