package main

import (
	"io/ioutil"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/snapbatch/snapbatch/cli"
	"github.com/snapbatch/snapbatch/common/log/hooks"
	"github.com/snapbatch/snapbatch/common/stats"
	"github.com/snapbatch/snapbatch/config"
)

func main() {
	log.AddHook(hooks.NewContextHook())

	inj := &injector{}
	cmd := cli.MakeCLI(inj)
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

type injector struct {
	configFile string
	logLevel   string
}

func (i *injector) RegisterFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVar(&i.configFile, "config", "", "JSON config file (defaults apply when unset)")
	rootCmd.PersistentFlags().StringVar(&i.logLevel, "log_level", "info", "Log everything at this level and above (error|info|debug)")
}

func (i *injector) Inject() (*config.Config, stats.StatsReceiver, error) {
	level, err := log.ParseLevel(i.logLevel)
	if err != nil {
		return nil, nil, err
	}
	log.SetLevel(level)

	var text []byte
	if i.configFile != "" {
		if text, err = ioutil.ReadFile(i.configFile); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.Parse(text)
	if err != nil {
		return nil, nil, err
	}
	return cfg, stats.DefaultStatsReceiver(), nil
}
