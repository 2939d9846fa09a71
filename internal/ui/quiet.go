package ui

// quietPresenter consumes events but produces no output. Failures are
// reported by the caller from the terminal event.
type quietPresenter struct{}

func (p *quietPresenter) Run(events <-chan Event) error {
	//nolint:revive // empty-block: intentionally draining event channel
	for range events {
	}
	return nil
}

func (p *quietPresenter) Summary() string {
	return ""
}
