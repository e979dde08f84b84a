package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// configgen merges a base config with a named preset (paper, live, ...) and
// writes the result as the values file the bot reads at startup. Keys given
// as TRADE_* environment variables win over both.
func main() {
	var (
		baseFile = flag.String("base", "configs/base.yaml", "base config")
		preset   = flag.String("preset", "paper", "preset name under configs/presets/")
		outFile  = flag.String("out", "configs/values_local.yaml", "output file")
	)
	flag.Parse()

	if err := run(*baseFile, *preset, *outFile); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (preset %s)\n", *outFile, *preset)
}

func run(baseFile, preset, outFile string) error {
	v := viper.New()
	v.SetConfigFile(baseFile)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrap(err, "read base config")
	}

	presetFile := filepath.Join("configs", "presets", preset+".yaml")
	pv := viper.New()
	pv.SetConfigFile(presetFile)
	if err := pv.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read preset %q", preset)
	}
	if err := v.MergeConfigMap(pv.AllSettings()); err != nil {
		return errors.Wrap(err, "merge preset")
	}

	v.SetEnvPrefix("TRADE")
	v.AutomaticEnv()

	bs, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return errors.Wrap(err, "marshal merged config")
	}
	tmp := outFile + ".tmp"
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return errors.Wrap(err, "write output")
	}
	return os.Rename(tmp, outFile)
}
