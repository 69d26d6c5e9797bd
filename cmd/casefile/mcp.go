package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/casefile"
	"github.com/aretw0/casefile/pkg/adapters/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the call engine as MCP tools so a voice agent can drive calls.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("mcp-port")

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		if !cmd.Flags().Changed("mcp-port") && app.Config.Server.MCPPort != 0 {
			port = app.Config.Server.MCPPort
		}

		srv := mcp.NewServer(app.Engine, casefile.Version, mcp.WithLogger(app.Logger))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return ignoreCanceled(app.Recheck.Run(ctx))
		})

		switch transport {
		case "stdio":
			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)
			app.Logger.Info("Starting casefile MCP Server (Stdio)")
			g.Go(func() error {
				defer stop()
				return srv.ServeStdio()
			})
		case "sse":
			app.Logger.Info("Starting casefile MCP Server (SSE)", "port", port)
			g.Go(func() error {
				defer stop()
				return srv.ServeSSE(ctx, port)
			})
		default:
			stop()
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}

		err = g.Wait()
		if err == nil || err == context.Canceled {
			app.Logger.Info("MCP Server stopped gracefully")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("mcp-port", 8081, "Port to listen on (only for SSE)")
}
