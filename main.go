package main

import (
	"embed"
	_ "embed"
	"log"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/lwgtools/replaydeck/services/replays"
	"github.com/lwgtools/replaydeck/services/replays/events"
	"github.com/lwgtools/replaydeck/services/replays/models"
)

// Wails uses Go's `embed` package to embed the frontend files into the binary.
// Any files in the frontend/dist folder will be embedded into the binary and
// made available to the frontend.
// See https://pkg.go.dev/embed for more information.

//go:embed all:frontend/dist
var assets embed.FS

func init() {
	application.RegisterEvent[models.CatalogLoaded](events.CatalogLoaded)
	application.RegisterEvent[models.CatalogError](events.CatalogFailed)
	application.RegisterEvent[models.FilterChange](events.FiltersChanged)
	application.RegisterEvent[models.DownloadStatus](events.DownloadProgress)
	application.RegisterEvent[models.PreviewReady](events.PreviewReady)
}

// main function serves as the application's entry point. It initializes the
// ReplaysService, creates a window, runs the application and logs any error
// that might occur.
func main() {
	// Initialize logger
	logger := slog.New(tint.NewHandler(os.Stdout, nil))

	// Create ReplaysService
	replaysService, err := replays.NewReplaysService(replays.ReplaysServiceConfig{
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("Failed to create ReplaysService: %v", err)
	}

	// Create a new Wails application by providing the necessary options.
	// Variables 'Name' and 'Description' are for application metadata.
	// 'Assets' configures the asset server with the 'FS' variable pointing to the frontend files.
	// 'Bind' is a list of Go struct instances. The frontend has access to the methods of these instances.
	// 'Mac' options tailor the application when running an macOS.
	app := application.New(application.Options{
		Name:        "replaydeck",
		Description: "A Littlewargame replay archive browser",
		Services: []application.Service{
			application.NewServiceWithOptions(replaysService, application.ServiceOptions{
				Route: "/replays",
			}),
		},
		Assets: application.AssetOptions{
			Handler: application.AssetFileServerFS(assets),
		},
		Mac: application.MacOptions{
			ApplicationShouldTerminateAfterLastWindowClosed: true,
		},
	})

	// Create a new window with the necessary options.
	// 'Title' is the title of the window.
	// 'BackgroundColour' is the background colour of the window.
	app.Window.NewWithOptions(application.WebviewWindowOptions{
		Title:            "Replaydeck",
		BackgroundColour: application.NewRGB(27, 38, 54),
		Width:            1280,
		Height:           800,
	})

	// Run the application. This blocks until the application has been exited.
	// If an error occurred while running the application, log it and exit.
	if err = app.Run(); err != nil {
		log.Fatal(err)
	}
}
