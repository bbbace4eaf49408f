package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arbiterhq/arbiter/internal/config"
	"github.com/arbiterhq/arbiter/internal/export"
	"github.com/arbiterhq/arbiter/internal/format"
	"github.com/arbiterhq/arbiter/internal/persona"
	"github.com/arbiterhq/arbiter/web/handlers"
)

var (
	exportFormatFlag string
	exportOutputFlag string
)

var exportCmd = &cobra.Command{
	Use:   "export [id]",
	Short: "Export a concluded debate",
	Long: `Export a concluded debate to JSON, Markdown or PDF.

Examples:
  arbiter export a1b2c3d4 --format markdown
  arbiter export a1b2c3d4 --format pdf --output transcript.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}
		defer st.Close()

		exporter, err := export.GetExporter(export.Format(exportFormatFlag))
		if err != nil {
			return err
		}

		id, err := st.resolveDebateID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		results, err := st.service.GetResults(cmd.Context(), id)
		if err != nil {
			return err
		}

		filename := exportOutputFlag
		if filename == "" {
			filename = export.GenerateFilename(results.Debate, exporter.FileExtension())
		}

		f, err := os.Create(filename)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", filename, err)
		}
		defer f.Close()

		if err := exporter.Export(results, f); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Printf("Exported debate to %s\n", filename)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormatFlag, "format", "f", "markdown", "Export format (json, markdown, pdf)")
	exportCmd.Flags().StringVarP(&exportOutputFlag, "output", "o", "", "Output file (default: generated name)")
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers and their health",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}
		defer st.Close()

		names := st.registry.Names()
		if len(names) == 0 {
			fmt.Println("No providers configured. Check your config file.")
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tAVAILABLE\tLATENCY\tERROR")
		for _, name := range names {
			status, err := st.gateway.CheckHealth(ctx, name)
			if err != nil {
				fmt.Fprintf(w, "%s\t%v\t-\t%s\n", name, false, err)
				continue
			}
			errMsg := status.Error
			if errMsg == "" {
				errMsg = "-"
			}
			fmt.Fprintf(w, "%s\t%v\t%s\t%s\n", name, status.Available, status.ResponseTime.Round(time.Millisecond), errMsg)
		}
		return w.Flush()
	},
}

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List built-in participant personas",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
		for _, p := range persona.DefaultPersonas() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.Description)
		}
		return w.Flush()
	},
}

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List built-in debate formats",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
		for _, f := range format.DefaultFormats() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.ID, f.Name, f.Description)
		}
		return w.Flush()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(config.GenerateExample()), 0o644); err != nil {
			return err
		}
		fmt.Printf("Wrote example config to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		fmt.Printf("# config file: %s\n\n", path)

		data, err := appConfig.Marshal()
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("port") && appConfig.Server.Port != 0 {
			servePort = appConfig.Server.Port
		}

		st, err := buildStack()
		if err != nil {
			return err
		}
		defer st.Close()

		h := handlers.New(st.service, st.gateway, st.registry)

		addr := fmt.Sprintf(":%d", servePort)
		server := &http.Server{
			Addr:    addr,
			Handler: h.Router(),
		}

		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh
			fmt.Println("\nShutting down...")
			server.Close()
		}()

		fmt.Printf("Starting arbiter server on http://localhost%s\n", addr)
		fmt.Println("Press Ctrl+C to stop")

		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8480, "Server port")
}
