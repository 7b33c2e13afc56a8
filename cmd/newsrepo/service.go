package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nova-repository/newsrepo/internal/apperr"
	"github.com/nova-repository/newsrepo/internal/controlsocket"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Run or control the long-lived pipeline worker process",
}

var serviceStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the pipeline worker pool and control socket until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()
		svc, err := a.PipelineService()
		if err != nil {
			return err
		}
		q, err := a.Queue()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc.Start(ctx)
		defer svc.Stop()

		socket := controlsocket.New(cfg.ControlSocketPath, svc, q, a.logger)
		go func() {
			if err := socket.Serve(ctx); err != nil {
				a.logger.Error("control socket serve failed", "error", err)
			}
		}()
		defer socket.Close()

		a.logger.Info("pipeline service started", "socket", cfg.ControlSocketPath)
		<-ctx.Done()
		a.logger.Info("pipeline service shutting down")
		return nil
	},
}

var serviceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running service (send SIGTERM to its process)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return apperr.New(apperr.Validation, "service stop is not tracked by pid; send SIGTERM to the `service start` process directly")
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the running service is paused",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := controlsocket.Client(cfg.ControlSocketPath, controlsocket.Request{Command: "status"})
		if err != nil {
			return err
		}
		if !resp.OK {
			return apperr.New(apperr.Internal, resp.Error)
		}
		if resp.Status != nil && resp.Status.Paused {
			fmt.Println("paused")
		} else {
			fmt.Println("running")
		}
		return nil
	},
}

var servicePauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause a running service's worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendServiceControl("pause")
	},
}

var serviceResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused service's worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendServiceControl("resume")
	},
}

func sendServiceControl(command string) error {
	resp, err := controlsocket.Client(cfg.ControlSocketPath, controlsocket.Request{Command: command})
	if err != nil {
		return err
	}
	if !resp.OK {
		return apperr.New(apperr.Internal, resp.Error)
	}
	fmt.Println("ok")
	return nil
}

func init() {
	serviceCmd.AddCommand(serviceStartCmd, serviceStopCmd, serviceStatusCmd, servicePauseCmd, serviceResumeCmd)
}
