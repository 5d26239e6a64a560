package main

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	mooddetector "github.com/menta2k/mood-detector"
	"github.com/menta2k/mood-detector/pkg/server"
)

var bindAddress string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve POST /process_frame over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindAddress != "" {
			cfg.Server.BindAddress = bindAddress
		}
		if !cfg.Server.Debug {
			gin.SetMode(gin.ReleaseMode)
		}

		p, err := mooddetector.FromConfig(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		log.Infof("serve: %s classifier, %d workers", cfg.Classifier.Backend, cfg.Pipeline.Workers)
		return server.New(cfg.Server, p).Run(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&bindAddress, "bind", "", "listen address, overrides server.bind_address")
	rootCmd.AddCommand(serveCmd)
}
