package main

import (
	"context"

	"github.com/rtspgrab/rtspgrab/internal/app"
	"github.com/rtspgrab/rtspgrab/internal/recorder"
	"github.com/rtspgrab/rtspgrab/pkg/shell"
)

func main() {
	app.Init()      // init config and logs
	recorder.Init() // start one worker per stream

	if sig := shell.RunUntilSignal(context.Background()); sig != nil {
		app.Logger.Info().Str("signal", sig.String()).Msg("exit")
	}

	recorder.Stop()
}
