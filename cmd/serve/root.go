package serve

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/sqkv/cmd/util"
	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/ValentinKolb/sqkv/lib/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Serve a database file over HTTP",
		Long: `Serve a database file over HTTP with a JSON API. The configuration can be set via command line flags or environment variables.
The format of the environment variables is SQKV_<flag> (e.g. SQKV_ENDPOINT=0.0.0.0:9000)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	cmdUtil.SetupStoreFlags(ServeCmd)

	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, common.DefaultEndpoint, cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, 0.0.0.0:9000)"))

	key = "max-body-size"
	ServeCmd.PersistentFlags().Int64(key, common.DefaultMaxBodyBytes>>10, cmdUtil.WrapString("Maximum size of a request body (in KB)"))

	key = "shutdown-timeout"
	ServeCmd.PersistentFlags().Duration(key, common.DefaultShutdownTimeout, cmdUtil.WrapString("Time in-flight requests get to finish on shutdown"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.MaxBodyBytes = viper.GetInt64("max-body-size") << 10
	serveCmdConfig.ShutdownTimeout = viper.GetDuration("shutdown-timeout")
	serveCmdConfig.Store = cmdUtil.GetStoreConfig()

	if serveCmdConfig.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	return nil
}

// run opens the store and serves it until SIGINT or SIGTERM
func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := cmdUtil.OpenStore(ctx, serveCmdConfig.Store)
	if err != nil {
		return err
	}
	defer s.Close()

	common.CreateLogger("serve").Info(serveCmdConfig.String())

	return server.NewServer(*serveCmdConfig, s).Serve(ctx)
}
