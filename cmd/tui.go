package cmd

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"sessionprobe/internal/config"
	"sessionprobe/internal/tui/app"
)

func runTUI(cfg *config.Config) error {
	if cfg.Request.File == "-" {
		return errors.New("reading the request from stdin needs --headless")
	}
	base, err := loadRequest(cfg)
	if err != nil {
		return err
	}

	// the console sink would tear the alternate screen
	e, err := newEnv(cfg, false)
	if err != nil {
		return err
	}
	defer e.Close()

	m := app.NewModel(app.Options{
		Scheduler:   e.scheduler(),
		Store:       e.store,
		Logger:      e.log,
		Base:        base,
		RequestFile: cfg.Request.File,
		Target:      cfg.Request.Target,
		Plain:       cfg.Request.Plain,
		Probe:       cfg.Probe,
	})
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
