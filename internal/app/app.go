package app

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"
)

var Version = "0.3.0"
var UserAgent = "rtspgrab/" + Version

var ConfigPath string
var Info = map[string]any{
	"version": Version,
}

func Init() {
	var confs flagConfig
	var version bool

	flag.Var(&confs, "config", "rtspgrab config (path to file or raw text), support multiple")
	flag.BoolVar(&version, "version", false, "Print the version of the application and exit")
	flag.Parse()

	if version {
		fmt.Println(versionString())
		os.Exit(0)
	}

	initConfig(confs)
	initLogger()

	for _, err := range configErrs {
		Logger.Warn().Err(err).Msg("[app] config")
	}

	platform := fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	Logger.Info().Str("version", Version).Str("platform", platform).Msg("rtspgrab")
	Logger.Debug().Str("version", runtime.Version()).Msg("build")

	if ConfigPath != "" {
		Logger.Info().Str("path", ConfigPath).Msg("config")
	}
}

func versionString() string {
	vcsRevision := ""
	vcsTime := time.Now().Local()
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if len(setting.Value) > 7 {
					vcsRevision = "(" + setting.Value[:7] + ")"
				} else {
					vcsRevision = "(" + setting.Value + ")"
				}
			case "vcs.time":
				vcsTime, _ = time.Parse(time.RFC3339, setting.Value)
			}
		}
	}
	return fmt.Sprintf(
		"rtspgrab version %s%s: %s %s/%s",
		Version, vcsRevision, vcsTime.Local().String(), runtime.GOOS, runtime.GOARCH,
	)
}
