package aio

type Options struct {
	Driver   Driver
	PollMode PollMode
}

type Option func(*Options)

// WithDriver
// selects the kernel submission backend. Native is the default.
func WithDriver(driver Driver) Option {
	return func(o *Options) {
		o.Driver = driver
	}
}

// WithPollMode
// chooses how completions are observed. NotPollable is the default.
func WithPollMode(mode PollMode) Option {
	return func(o *Options) {
		o.PollMode = mode
	}
}
