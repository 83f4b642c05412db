package config

import (
	"flag"
	"os"
)

// DefaultPath config file used when -config is not given.
const DefaultPath = "gainboard.yaml"

// Flags command line switches.
type Flags struct {
	ConfigPath string
	EnvFile    string
	Setup      bool
}

// ParseFlags parses the process command line.
func ParseFlags() (Flags, error) {
	return parseFlags(flag.CommandLine, os.Args[1:])
}

func parseFlags(fs *flag.FlagSet, args []string) (Flags, error) {
	var f Flags
	fs.StringVar(&f.ConfigPath, "config", DefaultPath, "path to yaml config")
	fs.StringVar(&f.EnvFile, "env", ".env", "optional .env file with secrets")
	fs.BoolVar(&f.Setup, "setup", false, "run the interactive config wizard and write -config")
	err := fs.Parse(args)
	return f, err
}
