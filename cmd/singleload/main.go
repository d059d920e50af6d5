// Command singleload runs a single user-supplied script inside an
// isolated, resource-capped container and prints the resulting
// execution record.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Singleload/Singleload/internal/config"
	"github.com/Singleload/Singleload/internal/engine"
	"github.com/Singleload/Singleload/internal/executor"
	"github.com/Singleload/Singleload/internal/logging"
	"github.com/Singleload/Singleload/internal/model"
	"github.com/Singleload/Singleload/internal/policy"
)

var (
	flagFormat string
	flagDebug  bool

	flagLang          string
	flagScript        string
	flagTimeout       int
	flagMemory        int
	flagCPU           float64
	flagMaxOutput     int
	flagContainerfile string
	flagForce         bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "singleload",
		Short:         "Execute untrusted scripts inside isolated, resource-capped containers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json or text")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging; on run, also retains the container and disables read-only root")

	root.AddCommand(newInstallCmd())
	root.AddCommand(newRunCmd())

	return root
}

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Build the base container image",
		RunE:  runInstall,
	}
	cmd.Flags().StringVar(&flagContainerfile, "containerfile", "Containerfile", "path to Containerfile")
	cmd.Flags().BoolVar(&flagForce, "force", false, "rebuild even if the image already exists")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a script in an isolated container",
		RunE:  runRun,
	}
	cmd.Flags().StringVar(&flagLang, "lang", "", "language: python, javascript, php, go, rust, bash, dotnet")
	cmd.Flags().StringVar(&flagScript, "script", "", "path to script file")
	cmd.Flags().IntVar(&flagTimeout, "timeout", 30, "execution timeout in seconds (1-3600)")
	cmd.Flags().IntVar(&flagMemory, "memory", 512, "memory limit in MiB (32-8192)")
	cmd.Flags().Float64Var(&flagCPU, "cpu", 1.0, "CPU limit (0.1-4.0)")
	cmd.Flags().IntVar(&flagMaxOutput, "max-output", 1024, "maximum output size in KiB (1-10240)")
	_ = cmd.MarkFlagRequired("lang")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func loggingFormat() logging.Format {
	if flagFormat == "text" {
		return logging.FormatText
	}
	return logging.FormatJSON
}

func runInstall(cmd *cobra.Command, args []string) error {
	log := logging.New(loggingFormat(), flagDebug)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return printErr(err)
	}

	driver, err := engine.New(ctx, cfg.PodmanSocket, log)
	if err != nil {
		return printErr(err)
	}
	defer driver.Close()

	containerfile, err := os.ReadFile(flagContainerfile)
	if err != nil {
		return printErr(fmt.Errorf("read containerfile: %w", err))
	}

	if err := driver.BuildImage(ctx, containerfile, cfg.BaseImageName, flagForce); err != nil {
		return printErr(err)
	}

	if flagFormat == "json" {
		out, _ := json.Marshal(map[string]string{
			"status":  "success",
			"message": "base image installed successfully",
			"image":   cfg.BaseImageName,
		})
		fmt.Println(string(out))
	} else {
		fmt.Println("base image installed successfully")
	}

	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	log := logging.New(loggingFormat(), flagDebug)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return printErr(err)
	}
	if err := cfg.Validate(); err != nil {
		return printErr(err)
	}

	if flagTimeout < 1 || flagTimeout > 3600 {
		return printErr(fmt.Errorf("timeout must be between 1 and 3600 seconds"))
	}
	if flagMemory < 32 || flagMemory > 8192 {
		return printErr(fmt.Errorf("memory must be between 32 and 8192 MB"))
	}
	if flagCPU < 0.1 || flagCPU > 4.0 {
		return printErr(fmt.Errorf("cpu must be between 0.1 and 4.0"))
	}
	if flagMaxOutput < 1 || flagMaxOutput > 10240 {
		return printErr(fmt.Errorf("max-output must be between 1 and 10240 KB"))
	}

	driver, err := engine.New(ctx, cfg.PodmanSocket, log)
	if err != nil {
		return printErr(err)
	}
	defer driver.Close()

	builder, err := policy.NewBuilder(cfg.ContainerPrefix)
	if err != nil {
		return printErr(err)
	}
	defer builder.Close()

	exec := executor.New(driver, builder, cfg, log)

	req := model.ScriptRequest{
		Language:    flagLang,
		ScriptPath:  flagScript,
		Timeout:     time.Duration(flagTimeout) * time.Second,
		MemoryMB:    flagMemory,
		CPULimit:    flagCPU,
		MaxOutputKB: flagMaxOutput,
		Debug:       flagDebug,
	}

	record := exec.Run(ctx, req)
	printRecord(record)

	exitCode := record.ExitCode
	if record.Status == model.StatusError {
		exitCode = 1
	}

	driver.Close()
	builder.Close()

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

func printRecord(record model.ExecutionRecord) {
	if flagFormat == "text" {
		printTextRecord(record)
		return
	}

	out, _ := json.MarshalIndent(record, "", "  ")
	fmt.Println(string(out))
}

func printTextRecord(record model.ExecutionRecord) {
	fmt.Printf("Status: %s\n", record.Status)
	fmt.Printf("Exit Code: %d\n", record.ExitCode)
	fmt.Printf("Duration: %dms\n", record.DurationMs)
	if record.Stdout != "" {
		fmt.Printf("\nStdout:\n%s\n", record.Stdout)
	}
	if record.Stderr != "" {
		fmt.Printf("\nStderr:\n%s\n", record.Stderr)
	}
	if record.Truncated {
		fmt.Println("\nOutput was truncated due to size limits")
	}
	if record.Error != "" {
		fmt.Printf("\nError: %s\n", record.Error)
	}
}

func printErr(err error) error {
	if flagFormat == "json" {
		out, _ := json.Marshal(map[string]string{"status": "error", "error": err.Error()})
		fmt.Println(string(out))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}
