package ui

import "github.com/bamsammich/psplink/internal/event"

// quietPresenter consumes events but produces no output.
type quietPresenter struct{}

func (*quietPresenter) Run(events <-chan event.Event) error {
	for range events {
	}
	return nil
}

func (*quietPresenter) Summary() string { return "" }
